// Package ring implements the consistent-hash ring used to route counter
// keys to the store node responsible for them. It is a pure data structure:
// no I/O, no locking beyond what's needed for concurrent lookups against a
// ring that's mutated rarely (membership changes) and read often.
package ring

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"sort"
	"sync"
)

// DefaultReplicas is the default number of virtual points per physical node.
const DefaultReplicas = 100

// point is one virtual node on the ring: a 128-bit MD5 digest and the
// physical node it belongs to. seq records insertion order so that hash
// ties (vanishingly unlikely with MD5, but the spec pins the behavior)
// resolve to the lowest-indexed insertion.
type point struct {
	hash [16]byte
	node string
	seq  uint64
}

// Ring is a consistent-hash ring mapping string keys to node identifiers.
// The zero value is not usable; construct with New.
type Ring struct {
	mu       sync.RWMutex
	replicas int
	points   []point // kept sorted by hash, then by seq
	nodes    map[string]bool
	nextSeq  uint64
}

// New creates an empty ring with the given virtual-node count per physical
// node. A non-positive replicas defaults to DefaultReplicas.
func New(replicas int) *Ring {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	return &Ring{
		replicas: replicas,
		nodes:    make(map[string]bool),
	}
}

// Build constructs a ring from a slice of node identifiers. The order of
// nodes does not affect the resulting mapping: Ring determinism depends
// only on the node set and the replica count, never on insertion order.
func Build(nodes []string, replicas int) *Ring {
	r := New(replicas)
	for _, n := range nodes {
		r.Add(n)
	}
	return r
}

func hashPoint(key string) [16]byte {
	return md5.Sum([]byte(key))
}

// Add inserts all R virtual points for node. Re-adding an already-present
// node is a no-op.
func (r *Ring) Add(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nodes[node] {
		return
	}
	r.nodes[node] = true
	for i := 0; i < r.replicas; i++ {
		h := hashPoint(fmt.Sprintf("%s-%d", node, i))
		r.points = append(r.points, point{hash: h, node: node, seq: r.nextSeq})
		r.nextSeq++
	}
	sort.Slice(r.points, func(i, j int) bool {
		c := bytes.Compare(r.points[i].hash[:], r.points[j].hash[:])
		if c != 0 {
			return c < 0
		}
		return r.points[i].seq < r.points[j].seq
	})
}

// Remove deletes all virtual points for node. Removing an absent node is a
// no-op.
func (r *Ring) Remove(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.nodes[node] {
		return
	}
	delete(r.nodes, node)
	kept := r.points[:0]
	for _, p := range r.points {
		if p.node != node {
			kept = append(kept, p)
		}
	}
	r.points = kept
}

// Lookup returns the node responsible for key: the node of the smallest
// virtual point strictly greater than hash(key), wrapping to the first
// point when no such point exists. Returns ("", false) iff the ring has no
// nodes.
func (r *Ring) Lookup(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.points) == 0 {
		return "", false
	}
	h := hashPoint(key)
	idx := sort.Search(len(r.points), func(i int) bool {
		return bytes.Compare(r.points[i].hash[:], h[:]) > 0
	})
	if idx == len(r.points) {
		idx = 0
	}
	return r.points[idx].node, true
}

// Nodes returns the current set of physical nodes, in no particular order.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.nodes))
	for n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// NodeCount returns the number of physical nodes currently on the ring.
func (r *Ring) NodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
