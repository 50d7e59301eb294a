package order

import (
	"math/rand"
	"testing"

	"server-catalog/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func srv(name string, status int, score float64) *models.Server {
	return &models.Server{ID: name, Name: name, Dynamic: models.Dynamic{Status: status, Score: score}}
}

func names(servers []*models.Server) []string {
	out := make([]string, len(servers))
	for i, s := range servers {
		out[i] = s.Name
	}
	return out
}

func TestCompareNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"DE#9", "DE#10", -1},
		{"DE#10", "DE#9", 1},
		{"DE#1", "de#1", -1},
		{"CH#2", "DE#1", -1},
		{"US-FREE#3", "US-FREE#12", -1},
		{"NL", "NL#1", -1},
		{"SE#5", "SE#5", 0},
		{"DE#99999999999999999999", "DE#1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareNames(tt.a, tt.b))
		})
	}
}

func TestSortNameAscending(t *testing.T) {
	t.Parallel()

	servers := []*models.Server{srv("DE#10", 1, 0), srv("DE#9", 1, 0), srv("AT#2", 1, 0), srv("DE#1", 0, 0)}
	Sort(servers, NameAscending, nil)
	assert.Equal(t, []string{"AT#2", "DE#1", "DE#9", "DE#10"}, names(servers))
}

func TestSortFastestIsMaintenanceFirst(t *testing.T) {
	t.Parallel()

	servers := []*models.Server{
		srv("down-fast", 0, 1),
		srv("up-slow", 1, 10),
		srv("up-fast", 1, 2),
		srv("down-slow", 0, 5),
	}
	Sort(servers, Fastest, nil)
	assert.Equal(t, []string{"up-fast", "up-slow", "down-fast", "down-slow"}, names(servers))
}

func TestSortRandomKeepsUsableFirst(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		servers := []*models.Server{
			srv("d1", 0, 0), srv("u1", 1, 0), srv("d2", 0, 0), srv("u2", 1, 0), srv("u3", 1, 0),
		}
		Sort(servers, Random, rng)
		for _, s := range servers[:3] {
			assert.Equal(t, 1, s.Dynamic.Status)
		}
		for _, s := range servers[3:] {
			assert.Equal(t, 0, s.Dynamic.Status)
		}
	}
}

func TestSortNoneKeepsOrder(t *testing.T) {
	t.Parallel()

	servers := []*models.Server{srv("b", 0, 0), srv("a", 1, 0)}
	Sort(servers, None, nil)
	assert.Equal(t, []string{"b", "a"}, names(servers))
}

func TestPicker(t *testing.T) {
	t.Parallel()

	candidates := []*models.Server{
		srv("DE#10", 0, 1),
		srv("DE#9", 1, 10),
		srv("DE#2", 1, 3),
		srv("DE#3", 1, 3),
	}

	t.Run("none takes first and is done", func(t *testing.T) {
		p := NewPicker(None, nil)
		assert.False(t, p.Done())
		p.Add(candidates[0])
		assert.True(t, p.Done())
		assert.Equal(t, "DE#10", p.Best().Name)
	})

	t.Run("fastest prefers usable and keeps earliest tie", func(t *testing.T) {
		p := NewPicker(Fastest, nil)
		for _, c := range candidates {
			p.Add(c)
		}
		assert.False(t, p.Done())
		assert.Equal(t, "DE#2", p.Best().Name)
	})

	t.Run("name ascending", func(t *testing.T) {
		p := NewPicker(NameAscending, nil)
		for _, c := range candidates {
			p.Add(c)
		}
		assert.Equal(t, "DE#2", p.Best().Name)
	})

	t.Run("random only picks usable", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		seen := map[string]bool{}
		for i := 0; i < 200; i++ {
			p := NewPicker(Random, rng)
			for _, c := range candidates {
				p.Add(c)
			}
			seen[p.Best().Name] = true
		}
		assert.Equal(t, map[string]bool{"DE#9": true, "DE#2": true, "DE#3": true}, seen)
	})

	t.Run("random falls back to maintenance", func(t *testing.T) {
		p := NewPicker(Random, rand.New(rand.NewSource(1)))
		p.Add(srv("a", 0, 0))
		p.Add(srv("b", 0, 0))
		require.NotNil(t, p.Best())
		assert.Equal(t, 0, p.Best().Dynamic.Status)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, NewPicker(Fastest, nil).Best())
	})

	t.Run("unknown order panics", func(t *testing.T) {
		assert.Panics(t, func() { NewPicker(Order(42), nil) })
	})
}

func TestParse(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Order{"": None, "none": None, "Random": Random, "fastest": Fastest, "name": NameAscending} {
		got, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if in != "" && in != "Random" {
			assert.Equal(t, in, got.String())
		}
	}
	_, err := Parse("slowest")
	assert.Error(t, err)
}
