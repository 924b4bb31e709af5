package model

import "github.com/notargets/StressRefine/element"

// topology holds the edges and faces shared between elements, keyed by
// their sorted global node ids
type topology struct {
	edgeID    map[[2]int]int
	edgeNodes [][2]int
	faceID    map[[3]int]int
	faceNodes [][3]int
	elemEdges [][6]int
	elemFaces [][4]int

	// Face connectivity, EToE[k][f] == k and EToF[k][f] == f on the boundary
	EToE [][]int
	EToF [][]int
}

func sort2(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func sort3(v [3]int) [3]int {
	if v[0] > v[1] {
		v[0], v[1] = v[1], v[0]
	}
	if v[1] > v[2] {
		v[1], v[2] = v[2], v[1]
	}
	if v[0] > v[1] {
		v[0], v[1] = v[1], v[0]
	}
	return v
}

// buildTopology registers edges and faces in element order and matches
// faces to build EToE/EToF
func buildTopology(EToV [][]int) *topology {
	K := len(EToV)
	t := &topology{
		edgeID:    make(map[[2]int]int),
		faceID:    make(map[[3]int]int),
		elemEdges: make([][6]int, K),
		elemFaces: make([][4]int, K),
		EToE:      make([][]int, K),
		EToF:      make([][]int, K),
	}

	type faceOwner struct{ elem, face int }
	owner := make(map[[3]int]faceOwner)

	for e := 0; e < K; e++ {
		t.EToE[e] = []int{e, e, e, e}
		t.EToF[e] = []int{0, 1, 2, 3}
		v := EToV[e]
		for i, ed := range element.TetEdges {
			key := sort2(v[ed[0]], v[ed[1]])
			id, ok := t.edgeID[key]
			if !ok {
				id = len(t.edgeNodes)
				t.edgeID[key] = id
				t.edgeNodes = append(t.edgeNodes, key)
			}
			t.elemEdges[e][i] = id
		}
		for f, fv := range element.TetFaces {
			key := sort3([3]int{v[fv[0]], v[fv[1]], v[fv[2]]})
			id, ok := t.faceID[key]
			if !ok {
				id = len(t.faceNodes)
				t.faceID[key] = id
				t.faceNodes = append(t.faceNodes, key)
			}
			t.elemFaces[e][f] = id

			// Check if this face already exists
			if existing, found := owner[key]; found {
				t.EToE[e][f] = existing.elem
				t.EToF[e][f] = existing.face
				t.EToE[existing.elem][existing.face] = e
				t.EToF[existing.elem][existing.face] = f
			} else {
				owner[key] = faceOwner{e, f}
			}
		}
	}
	return t
}
