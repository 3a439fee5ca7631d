package meshkit

import "math"

// fillHoles closes every boundary loop with a triangle fan and returns the
// number of loops closed
func fillHoles(m *Mesh) int {
	loops := buildTopology(m).boundaryLoops()
	for _, loop := range loops {
		for i := 1; i+1 < len(loop); i++ {
			m.Faces = append(m.Faces, [3]int{loop[0], loop[i], loop[i+1]})
		}
	}
	return len(loops)
}

// fixNormals makes winding consistent within each body by walking face
// adjacency from the body's first face. Returns the number of faces flipped.
func fixNormals(m *Mesh) int {
	t := buildTopology(m)

	adjacent := make([][]int, len(m.Faces))
	for _, uses := range t.edges {
		if len(uses) != 2 {
			continue
		}
		f, g := uses[0].face, uses[1].face
		adjacent[f] = append(adjacent[f], g)
		adjacent[g] = append(adjacent[g], f)
	}

	flipped := 0
	visited := make([]bool, len(m.Faces))
	for seed := range m.Faces {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		queue := []int{seed}
		for len(queue) > 0 {
			fi := queue[0]
			queue = queue[1:]
			for _, gi := range adjacent[fi] {
				if visited[gi] {
					continue
				}
				visited[gi] = true
				if sameDirection(m.Faces[fi], m.Faces[gi]) {
					m.flip(gi)
					flipped++
				}
				queue = append(queue, gi)
			}
		}
	}
	return flipped
}

// sameDirection reports whether f and g walk a shared edge the same way
func sameDirection(f, g [3]int) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if f[i] == g[j] && f[(i+1)%3] == g[(j+1)%3] {
				return true
			}
		}
	}
	return false
}

// fixInversion flips every closed body whose volume is negative so its
// normals point outward. Returns the number of bodies flipped.
func fixInversion(m *Mesh) int {
	t := buildTopology(m)
	flipped := 0
	for _, body := range t.bodies() {
		if !t.closed(body) || m.signedVolume(body) >= 0 {
			continue
		}
		for _, fi := range body {
			m.flip(fi)
		}
		flipped++
	}
	return flipped
}

// smooth applies Laplacian smoothing with step lambda. When the mesh is
// closed, the volume is restored after each pass by scaling about the
// centroid.
func smooth(m *Mesh, lambda float64, iterations int) {
	t := buildTopology(m)
	neighbors := t.neighbors()
	keepVolume := t.watertight()
	target := m.signedVolume(m.allFaces())

	next := make([]vec3, len(m.Vertices))
	for it := 0; it < iterations; it++ {
		for i, v := range m.Vertices {
			ns := neighbors[i]
			if len(ns) == 0 {
				next[i] = v
				continue
			}
			var avg vec3
			for _, n := range ns {
				avg = avg.add(m.Vertices[n])
			}
			avg = avg.scale(1 / float64(len(ns)))
			next[i] = v.add(avg.sub(v).scale(lambda))
		}
		copy(m.Vertices, next)

		if keepVolume && target != 0 {
			current := m.signedVolume(m.allFaces())
			if current != 0 && (current > 0) == (target > 0) {
				rescale(m, math.Cbrt(target/current))
			}
		}
	}
}

func rescale(m *Mesh, factor float64) {
	var centroid vec3
	for _, v := range m.Vertices {
		centroid = centroid.add(v)
	}
	centroid = centroid.scale(1 / float64(len(m.Vertices)))
	for i, v := range m.Vertices {
		m.Vertices[i] = centroid.add(v.sub(centroid).scale(factor))
	}
}
