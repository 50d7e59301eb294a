package catalog

import (
	"sort"

	"server-catalog/pkg/models"
)

// Snapshot is an immutable view of the catalog. Servers are kept in
// ascending id order, which is the store order queries fall back to.
type Snapshot struct {
	servers []*models.Server
	byID    map[string]int
}

func newSnapshot(servers []*models.Server) *Snapshot {
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	byID := make(map[string]int, len(servers))
	for i, s := range servers {
		byID[s.ID] = i
	}
	return &Snapshot{servers: servers, byID: byID}
}

// Len returns the number of logicals.
func (s *Snapshot) Len() int {
	return len(s.servers)
}

// Servers returns the logicals in store order. The slice and the servers
// are shared and must not be modified.
func (s *Snapshot) Servers() []*models.Server {
	return s.servers
}

// Get returns the logical with id, or nil.
func (s *Snapshot) Get(id string) *models.Server {
	if i, ok := s.byID[id]; ok {
		return s.servers[i]
	}
	return nil
}

func (s *Snapshot) withUpserted(servers []models.Server) *Snapshot {
	merged := make(map[string]*models.Server, len(s.servers)+len(servers))
	claimed := make(map[string]struct{})
	for i := range servers {
		for _, e := range servers[i].Endpoints {
			claimed[e.ID] = struct{}{}
		}
	}
	for _, existing := range s.servers {
		merged[existing.ID] = withoutEndpoints(existing, claimed)
	}
	for i := range servers {
		merged[servers[i].ID] = servers[i].Clone()
	}
	return fromMap(merged)
}

// withoutEndpoints drops endpoints that another logical now owns. The
// original is returned untouched when it keeps all of them.
func withoutEndpoints(server *models.Server, claimed map[string]struct{}) *models.Server {
	moved := false
	for _, e := range server.Endpoints {
		if _, ok := claimed[e.ID]; ok {
			moved = true
			break
		}
	}
	if !moved {
		return server
	}
	c := server.Clone()
	kept := c.Endpoints[:0]
	for _, e := range c.Endpoints {
		if _, ok := claimed[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	c.Endpoints = kept
	return c
}

func (s *Snapshot) withDeleted(ids []string) *Snapshot {
	if len(ids) == 0 {
		return s
	}
	gone := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}
	kept := make([]*models.Server, 0, len(s.servers))
	for _, existing := range s.servers {
		if _, ok := gone[existing.ID]; !ok {
			kept = append(kept, existing)
		}
	}
	return newSnapshot(kept)
}

func (s *Snapshot) withDynamic(loads []models.ServerLoad) *Snapshot {
	servers := make([]*models.Server, len(s.servers))
	copy(servers, s.servers)
	for _, l := range loads {
		i, ok := s.byID[l.ID]
		if !ok {
			continue
		}
		// Static fields and endpoints are shared with the previous snapshot.
		updated := *servers[i]
		updated.Dynamic = l.Dynamic
		servers[i] = &updated
	}
	return &Snapshot{servers: servers, byID: s.byID}
}

func fromMap(m map[string]*models.Server) *Snapshot {
	servers := make([]*models.Server, 0, len(m))
	for _, s := range m {
		servers = append(servers, s)
	}
	return newSnapshot(servers)
}

// NewSnapshot builds a standalone snapshot from copies of servers.
func NewSnapshot(servers []models.Server) *Snapshot {
	ptrs := make([]*models.Server, len(servers))
	for i := range servers {
		ptrs[i] = servers[i].Clone()
	}
	return newSnapshot(ptrs)
}
