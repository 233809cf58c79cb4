package ratsnest

// unionFind is a disjoint-set over the dense node indices 0..n-1 with path
// compression and union by rank.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

// find returns the representative of the set containing x.
func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

// union merges the sets of x and y and reports whether they were distinct.
func (uf *unionFind) union(x, y int) bool {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return false
	}
	// Attach the shorter tree under the taller one.
	switch {
	case uf.rank[rx] < uf.rank[ry]:
		uf.parent[rx] = ry
	case uf.rank[rx] > uf.rank[ry]:
		uf.parent[ry] = rx
	default:
		uf.parent[ry] = rx
		uf.rank[rx]++
	}
	return true
}

// components labels every element with a dense component number, assigned
// in order of each component's lowest element, and returns the count.
func (uf *unionFind) components() ([]int, int) {
	label := make([]int, len(uf.parent))
	seen := make(map[int]int)
	for x := range uf.parent {
		root := uf.find(x)
		id, ok := seen[root]
		if !ok {
			id = len(seen)
			seen[root] = id
		}
		label[x] = id
	}
	return label, len(seen)
}
