package server_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/hyperbalance/internal/flavor"
	"github.com/yourusername/hyperbalance/internal/server"
)

func ramVCPUServer(id string, ramMB, vcpus int64) server.Server {
	return server.Server{
		ID:     id,
		Name:   id,
		Flavor: flavor.New("f-"+id, "f-"+id, ramMB, vcpus),
		Status: server.StatusActive,
	}
}

func TestRatioIsFloorDivision(t *testing.T) {
	s := ramVCPUServer("a", 16384, 5)
	assert.Equal(t, int64(3276), s.Ratio())
}

func TestLength(t *testing.T) {
	s := ramVCPUServer("a", 3, 4)
	assert.InDelta(t, 5.0, s.Length(), 1e-9)
}

func TestDivergenceSignMatchesRatioComparison(t *testing.T) {
	reference := 100.0
	above := ramVCPUServer("above", 20000, 10) // ratio 2000 > 100
	below := ramVCPUServer("below", 100, 10)   // ratio 10 < 100
	equal := ramVCPUServer("equal", 1000, 10)  // ratio 100 == 100

	assert.Greater(t, above.DivergenceFrom(reference), 0.0)
	assert.Less(t, below.DivergenceFrom(reference), 0.0)
	assert.InDelta(t, 0.0, equal.DivergenceFrom(reference), 1e-9)
}

func TestDivergenceSignGeneral(t *testing.T) {
	reference := 50.0
	for _, ratio := range []int64{1, 49, 50, 51, 500} {
		s := ramVCPUServer("s", ratio*10, 10)
		div := s.DivergenceFrom(reference)
		want := 0
		if float64(ratio) > reference {
			want = 1
		} else if float64(ratio) < reference {
			want = -1
		}
		got := 0
		if div > 1e-9 {
			got = 1
		} else if div < -1e-9 {
			got = -1
		}
		assert.Equal(t, want, got, "ratio=%d", ratio)
	}
}

func TestEqualityIsIdentifier(t *testing.T) {
	a := ramVCPUServer("x", 1, 1)
	b := server.Server{ID: "x", Name: "different-name", Flavor: flavor.New("other", "other", 999, 999)}
	c := ramVCPUServer("y", 1, 1)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestActive(t *testing.T) {
	active := ramVCPUServer("a", 1, 1)
	shelved := server.Server{ID: "b", Status: server.StatusShelvedOffloaded}
	assert.True(t, active.Active())
	assert.False(t, shelved.Active())
}

func TestAtanMonotonic(t *testing.T) {
	// sanity check that divergence grows with distance from the reference line
	reference := 10.0
	near := ramVCPUServer("near", 110, 10)  // ratio 11
	far := ramVCPUServer("far", 1000, 10)   // ratio 100
	assert.Greater(t, math.Abs(far.DivergenceFrom(reference)), math.Abs(near.DivergenceFrom(reference)))
}
