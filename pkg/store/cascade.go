package store

import "sort"

// adjacency returns the traversable neighbors of a node. Both store
// implementations hand their edge sets to bfsCascade through this.
type adjacency func(Key) []Key

// bfsCascade expands breadth-first from start up to maxHops, recording each
// node at its minimum hop distance exactly once. Edges are followed in both
// directions by the adjacency function; start itself is excluded. Results
// are ordered by hop count, then key, so output is deterministic regardless
// of edge iteration order.
func bfsCascade(start Key, maxHops int, neighbors adjacency) []Reach {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	seen := map[Key]int{start: 0}
	frontier := []Key{start}
	var out []Reach

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []Key
		for _, node := range frontier {
			for _, n := range neighbors(node) {
				if _, ok := seen[n]; ok {
					continue
				}
				seen[n] = hop
				next = append(next, n)
				out = append(out, Reach{Key: n, Hops: hop})
			}
		}
		frontier = next
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Hops != out[j].Hops {
			return out[i].Hops < out[j].Hops
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// undirectedNeighbors builds an adjacency function over an edge list,
// following traversable edges from both endpoints.
func undirectedNeighbors(edges []StructuralEdge) adjacency {
	adj := make(map[Key][]Key)
	for _, e := range edges {
		if !e.Type.Traversable() {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}
	return func(k Key) []Key { return adj[k] }
}
