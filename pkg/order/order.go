// Package order holds the ordering strategies applied to filtered servers.
package order

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"server-catalog/pkg/models"
)

// Order selects how filtered servers are ranked.
type Order int

const (
	// None keeps store order.
	None Order = iota
	// Random puts usable servers before those under maintenance and
	// shuffles within each group.
	Random
	// Fastest puts usable servers first, then ascending score.
	Fastest
	// NameAscending compares the name prefix, then the numeric suffix.
	NameAscending
)

func (o Order) String() string {
	switch o {
	case None:
		return "none"
	case Random:
		return "random"
	case Fastest:
		return "fastest"
	case NameAscending:
		return "name"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// Parse maps "none", "random", "fastest" and "name" to an Order.
func Parse(name string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None, nil
	case "random":
		return Random, nil
	case "fastest":
		return Fastest, nil
	case "name", "name_ascending":
		return NameAscending, nil
	default:
		return None, fmt.Errorf("unknown order %q", name)
	}
}

// maintenanceRank is 0 for usable servers and 1 for those under maintenance.
func maintenanceRank(s *models.Server) int {
	if s.IsUnderMaintenance() {
		return 1
	}
	return 0
}

// CompareFastest orders usable servers first, then by ascending score.
func CompareFastest(a, b *models.Server) int {
	if ra, rb := maintenanceRank(a), maintenanceRank(b); ra != rb {
		return ra - rb
	}
	switch {
	case a.Dynamic.Score < b.Dynamic.Score:
		return -1
	case a.Dynamic.Score > b.Dynamic.Score:
		return 1
	}
	return 0
}

// CompareByName orders servers with CompareNames.
func CompareByName(a, b *models.Server) int {
	return CompareNames(a.Name, b.Name)
}

// Compare returns the comparator for deterministic orders. None and Random
// have none.
func (o Order) Compare() func(a, b *models.Server) int {
	switch o {
	case Fastest:
		return CompareFastest
	case NameAscending:
		return CompareByName
	default:
		return nil
	}
}

// Sort orders servers in place. rng is only used by Random.
func Sort(servers []*models.Server, o Order, rng *rand.Rand) {
	switch o {
	case None:
	case Random:
		rng.Shuffle(len(servers), func(i, j int) { servers[i], servers[j] = servers[j], servers[i] })
		sort.SliceStable(servers, func(i, j int) bool {
			return maintenanceRank(servers[i]) < maintenanceRank(servers[j])
		})
	case Fastest, NameAscending:
		cmp := o.Compare()
		sort.SliceStable(servers, func(i, j int) bool { return cmp(servers[i], servers[j]) < 0 })
	default:
		panic(fmt.Sprintf("order: unknown ordering %d", int(o)))
	}
}

// Picker keeps the best server seen so far without materializing the
// candidates.
type Picker struct {
	order Order
	rng   *rand.Rand

	best     *models.Server
	bestRank int
	ties     int
}

func NewPicker(o Order, rng *rand.Rand) *Picker {
	if o < None || o > NameAscending {
		panic(fmt.Sprintf("order: unknown ordering %d", int(o)))
	}
	return &Picker{order: o, rng: rng}
}

// Done reports whether further candidates cannot change the result.
func (p *Picker) Done() bool {
	return p.order == None && p.best != nil
}

// Add offers a candidate. Candidates must arrive in store order so ties
// resolve to the earlier one.
func (p *Picker) Add(s *models.Server) {
	if p.best == nil {
		p.best, p.bestRank, p.ties = s, maintenanceRank(s), 1
		return
	}
	switch p.order {
	case None:
	case Random:
		// Reservoir sampling within the best maintenance group.
		rank := maintenanceRank(s)
		switch {
		case rank < p.bestRank:
			p.best, p.bestRank, p.ties = s, rank, 1
		case rank == p.bestRank:
			p.ties++
			if p.rng.Intn(p.ties) == 0 {
				p.best = s
			}
		}
	default:
		if p.order.Compare()(s, p.best) < 0 {
			p.best = s
		}
	}
}

// Best returns the chosen server, or nil if none was offered.
func (p *Picker) Best() *models.Server {
	return p.best
}
