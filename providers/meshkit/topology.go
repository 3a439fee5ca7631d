package meshkit

import "sort"

// edge is an undirected edge with a < b
type edge struct{ a, b int }

func newEdge(u, v int) edge {
	if u > v {
		u, v = v, u
	}
	return edge{u, v}
}

// edgeUse is one face's traversal of an edge
type edgeUse struct {
	face    int
	forward bool // face walks the edge from a to b
}

// topology indexes a mesh's edges. It is a snapshot; rebuild after editing
// faces.
type topology struct {
	mesh  *Mesh
	edges map[edge][]edgeUse
}

func buildTopology(m *Mesh) *topology {
	t := &topology{mesh: m, edges: make(map[edge][]edgeUse, len(m.Faces)*3/2)}
	for fi, f := range m.Faces {
		for i := 0; i < 3; i++ {
			u, v := f[i], f[(i+1)%3]
			e := newEdge(u, v)
			t.edges[e] = append(t.edges[e], edgeUse{face: fi, forward: u == e.a})
		}
	}
	return t
}

// watertight reports whether every edge is shared by exactly two faces
func (t *topology) watertight() bool {
	if len(t.edges) == 0 {
		return false
	}
	for _, uses := range t.edges {
		if len(uses) != 2 {
			return false
		}
	}
	return true
}

// windingConsistent reports whether every manifold edge is walked in
// opposite directions by its two faces. Non-manifold edges cannot be
// consistent.
func (t *topology) windingConsistent() bool {
	for _, uses := range t.edges {
		switch len(uses) {
		case 1:
		case 2:
			if uses[0].forward == uses[1].forward {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// bodies groups faces into connected components through shared vertices
func (t *topology) bodies() [][]int {
	m := t.mesh
	parent := make([]int, len(m.Vertices))
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, f := range m.Faces {
		r0 := find(f[0])
		for _, v := range f[1:] {
			if r := find(v); r != r0 {
				parent[r] = r0
			}
		}
	}

	groups := make(map[int][]int)
	var order []int
	for fi, f := range m.Faces {
		root := find(f[0])
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], fi)
	}
	out := make([][]int, 0, len(order))
	for _, root := range order {
		out = append(out, groups[root])
	}
	return out
}

// closed reports whether the given faces form a closed manifold surface on
// their own
func (t *topology) closed(faces []int) bool {
	for _, fi := range faces {
		f := t.mesh.Faces[fi]
		for i := 0; i < 3; i++ {
			if len(t.edges[newEdge(f[i], f[(i+1)%3])]) != 2 {
				return false
			}
		}
	}
	return true
}

// boundaryLoops returns the holes of the mesh as vertex loops, ordered so
// that a fan over each loop is wound consistently with its neighbors
func (t *topology) boundaryLoops() [][]int {
	// A hole face must walk each boundary edge against the existing face.
	next := make(map[int][]int)
	for e, uses := range t.edges {
		if len(uses) != 1 {
			continue
		}
		if uses[0].forward {
			next[e.b] = append(next[e.b], e.a)
		} else {
			next[e.a] = append(next[e.a], e.b)
		}
	}

	starts := make([]int, 0, len(next))
	for v := range next {
		starts = append(starts, v)
	}
	sort.Ints(starts)

	var loops [][]int
	for _, start := range starts {
		for len(next[start]) > 0 {
			loop := []int{start}
			cur := start
			for {
				outs := next[cur]
				if len(outs) == 0 {
					loop = nil
					break
				}
				nxt := outs[0]
				next[cur] = outs[1:]
				if nxt == start {
					break
				}
				loop = append(loop, nxt)
				cur = nxt
				if len(loop) > len(t.edges) {
					loop = nil
					break
				}
			}
			if len(loop) >= 3 {
				loops = append(loops, loop)
			}
		}
	}
	return loops
}

// neighbors returns the vertex adjacency of the mesh
func (t *topology) neighbors() [][]int {
	out := make([][]int, len(t.mesh.Vertices))
	for e := range t.edges {
		out[e.a] = append(out[e.a], e.b)
		out[e.b] = append(out[e.b], e.a)
	}
	return out
}
