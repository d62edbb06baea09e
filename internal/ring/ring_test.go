package ring

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupEmptyRing(t *testing.T) {
	r := New(10)
	_, ok := r.Lookup("anything")
	assert.False(t, ok)
}

func TestDeterministicAcrossInsertionOrder(t *testing.T) {
	nodesA := []string{"node-1", "node-2", "node-3", "node-4", "node-5"}
	nodesB := []string{"node-4", "node-1", "node-5", "node-3", "node-2"}

	ra := Build(nodesA, 100)
	rb := Build(nodesB, 100)

	keys := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		keys = append(keys, fmt.Sprintf("key-%d", i))
	}

	for _, k := range keys {
		na, ok := ra.Lookup(k)
		require.True(t, ok)
		nb, ok := rb.Lookup(k)
		require.True(t, ok)
		assert.Equal(t, na, nb, "lookup(%q) must not depend on build order", k)
	}
}

func TestLookupIsPureFunction(t *testing.T) {
	r := Build([]string{"a", "b", "c"}, 100)
	first, _ := r.Lookup("stable-key")
	for i := 0; i < 50; i++ {
		got, ok := r.Lookup("stable-key")
		require.True(t, ok)
		assert.Equal(t, first, got)
	}
}

func TestBalancedDistribution(t *testing.T) {
	nodes := []string{"n0", "n1", "n2", "n3", "n4"}
	r := Build(nodes, 100)

	const total = 100_000
	counts := make(map[string]int, len(nodes))
	for i := 0; i < total; i++ {
		n, ok := r.Lookup(fmt.Sprintf("balanced-key-%d", i))
		require.True(t, ok)
		counts[n]++
	}

	expected := float64(total) / float64(len(nodes))
	for n, c := range counts {
		dev := math.Abs(float64(c)-expected) / expected
		assert.Lessf(t, dev, 0.20, "node %s load deviates by %.2f%%", n, dev*100)
	}
}

func TestAddRemoveKeepsRingSorted(t *testing.T) {
	r := Build([]string{"a", "b"}, 50)
	r.Add("c")
	r.Remove("a")

	assert.ElementsMatch(t, []string{"b", "c"}, r.Nodes())
	assert.Equal(t, 2, r.NodeCount())

	for i := 1; i < len(r.points); i++ {
		prev, cur := r.points[i-1], r.points[i]
		assert.LessOrEqual(t, compareHash(prev.hash, cur.hash), 0)
	}
}

func compareHash(a, b [16]byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func TestRemoveAbsentNodeIsNoop(t *testing.T) {
	r := Build([]string{"a"}, 10)
	before := len(r.points)
	r.Remove("does-not-exist")
	assert.Equal(t, before, len(r.points))
}

func TestAddDuplicateNodeIsNoop(t *testing.T) {
	r := Build([]string{"a"}, 10)
	before := len(r.points)
	r.Add("a")
	assert.Equal(t, before, len(r.points))
}
