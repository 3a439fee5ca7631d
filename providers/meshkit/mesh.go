// Package meshkit provides the native surface-mesh validator and optimizer.
// Meshes are read and written as STL; vertices are welded on load so that
// topology (edges, boundaries, components) can be computed.
package meshkit

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/hschendel/stl"
)

type vec3 [3]float64

func (a vec3) add(b vec3) vec3      { return vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a vec3) sub(b vec3) vec3      { return vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a vec3) scale(s float64) vec3 { return vec3{a[0] * s, a[1] * s, a[2] * s} }
func (a vec3) dot(b vec3) float64   { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func (a vec3) norm() float64        { return math.Sqrt(a.dot(a)) }

func (a vec3) cross(b vec3) vec3 {
	return vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Mesh is an indexed triangle mesh
type Mesh struct {
	Vertices []vec3
	Faces    [][3]int
}

// Load reads an STL file and welds coincident vertices. Degenerate faces
// (two corners on the same welded vertex) are dropped.
func Load(path string) (*Mesh, error) {
	solid, err := stl.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mesh %s: %w", path, err)
	}
	return fromSolid(solid), nil
}

func fromSolid(solid *stl.Solid) *Mesh {
	m := &Mesh{Faces: make([][3]int, 0, len(solid.Triangles))}
	index := make(map[stl.Vec3]int)

	for _, t := range solid.Triangles {
		var face [3]int
		for i, v := range t.Vertices {
			id, ok := index[v]
			if !ok {
				id = len(m.Vertices)
				index[v] = id
				m.Vertices = append(m.Vertices, vec3{float64(v[0]), float64(v[1]), float64(v[2])})
			}
			face[i] = id
		}
		if face[0] == face[1] || face[1] == face[2] || face[0] == face[2] {
			continue
		}
		m.Faces = append(m.Faces, face)
	}
	return m
}

// Save writes the mesh as binary STL. The file is written next to path and
// renamed into place so readers never see a partial mesh.
func (m *Mesh) Save(path string) error {
	solid := m.solid(filepath.Base(path))

	tmp := path + ".partial"
	if err := solid.WriteFile(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write mesh %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit mesh %s: %w", path, err)
	}
	return nil
}

func (m *Mesh) solid(name string) *stl.Solid {
	solid := &stl.Solid{Name: name, Triangles: make([]stl.Triangle, 0, len(m.Faces))}
	for _, f := range m.Faces {
		var t stl.Triangle
		for i, id := range f {
			v := m.Vertices[id]
			t.Vertices[i] = stl.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
		}
		n := m.normal(f)
		t.Normal = stl.Vec3{float32(n[0]), float32(n[1]), float32(n[2])}
		solid.Triangles = append(solid.Triangles, t)
	}
	return solid
}

func (m *Mesh) corners(f [3]int) (vec3, vec3, vec3) {
	return m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
}

// normal returns the unit normal of f, or the zero vector for a sliver
func (m *Mesh) normal(f [3]int) vec3 {
	a, b, c := m.corners(f)
	n := b.sub(a).cross(c.sub(a))
	l := n.norm()
	if l == 0 {
		return vec3{}
	}
	return n.scale(1 / l)
}

func (m *Mesh) area(f [3]int) float64 {
	a, b, c := m.corners(f)
	return b.sub(a).cross(c.sub(a)).norm() / 2
}

// signedVolume is the divergence-theorem volume of faces. It is positive for
// a closed, outward-wound surface.
func (m *Mesh) signedVolume(faces []int) float64 {
	var vol float64
	for _, fi := range faces {
		a, b, c := m.corners(m.Faces[fi])
		vol += a.dot(b.cross(c))
	}
	return vol / 6
}

func (m *Mesh) allFaces() []int {
	out := make([]int, len(m.Faces))
	for i := range out {
		out[i] = i
	}
	return out
}

func (m *Mesh) flip(fi int) {
	f := m.Faces[fi]
	m.Faces[fi] = [3]int{f[0], f[2], f[1]}
}
