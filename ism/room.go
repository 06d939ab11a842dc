package ism

import "github.com/3dti-go/binaural/geom"

// Room is a set of convex polygonal walls with consistent inward normals
// (§4.5 "Room is a set of convex polygonal walls..."). A shoebox room is
// the common case: six axis-aligned rectangular walls.
type Room struct {
	Walls []*Wall
}

// NewRoom returns an empty room; walls are added with SetupShoeBox or
// SetupRoomGeometry.
func NewRoom() *Room {
	return &Room{}
}

// SetupShoeBox replaces the room's walls with an axis-aligned box of the
// given length (X), width (Z) and height (Y), centred at the origin.
func (r *Room) SetupShoeBox(length, width, height float64) {
	hl, hw, hh := length/2, width/2, height/2
	corners := [8]geom.CVector3{
		geom.Vec(-hl, -hh, -hw), geom.Vec(hl, -hh, -hw),
		geom.Vec(hl, -hh, hw), geom.Vec(-hl, -hh, hw),
		geom.Vec(-hl, hh, -hw), geom.Vec(hl, hh, -hw),
		geom.Vec(hl, hh, hw), geom.Vec(-hl, hh, hw),
	}
	// Vertex winding chosen so each wall's Newell normal points inward.
	faces := [6][4]int{
		{3, 2, 1, 0}, // floor
		{5, 6, 7, 4}, // ceiling
		{1, 5, 4, 0}, // -Z wall
		{7, 6, 2, 3}, // +Z wall
		{4, 7, 3, 0}, // -X wall
		{2, 6, 5, 1}, // +X wall
	}
	r.Walls = make([]*Wall, len(faces))
	for i, f := range faces {
		verts := make([]geom.CVector3, len(f))
		for j, idx := range f {
			verts[j] = corners[idx]
		}
		r.Walls[i] = NewWall(verts, nil)
	}
}

// SetupRoomGeometry replaces the room's walls with an arbitrary polygonal
// mesh: corners is the shared vertex pool, polygons indexes into it per
// wall, in winding order.
func (r *Room) SetupRoomGeometry(corners []geom.CVector3, polygons [][]int) {
	r.Walls = make([]*Wall, len(polygons))
	for i, poly := range polygons {
		verts := make([]geom.CVector3, len(poly))
		for j, idx := range poly {
			verts[j] = corners[idx]
		}
		r.Walls[i] = NewWall(verts, nil)
	}
}

// SetWallAbsorption sets wall i's per-band absorption coefficients
// (0=fully reflective, 1=fully absorptive).
func (r *Room) SetWallAbsorption(i int, bands []float64) {
	if i < 0 || i >= len(r.Walls) {
		return
	}
	r.Walls[i].Absorption = append([]float64(nil), bands...)
}

// EnableWall / DisableWall toggle a wall's participation in image-source
// reflection (§4.5 "active flag").
func (r *Room) EnableWall(i int)  { r.setActive(i, true) }
func (r *Room) DisableWall(i int) { r.setActive(i, false) }

func (r *Room) setActive(i int, active bool) {
	if i < 0 || i >= len(r.Walls) {
		return
	}
	r.Walls[i].Active = active
}

// Mirrored returns a room whose every wall's vertices have been reflected
// across wall r.Walls[wallIdx]'s plane: the "view" a grandchild image level
// must reflect against, per the recursive mirror-room construction used by
// higher-order images (§4.5, §9 flattened-arena design note).
func (r *Room) Mirrored(wallIdx int) *Room {
	mirror := r.Walls[wallIdx]
	out := &Room{Walls: make([]*Wall, len(r.Walls))}
	for i, w := range r.Walls {
		if i == wallIdx {
			out.Walls[i] = w // a wall never reflects against itself
			continue
		}
		verts := make([]geom.CVector3, len(w.Vertices))
		for j, v := range w.Vertices {
			verts[j] = mirror.Mirror(v)
		}
		mirrored := NewWall(verts, w.Absorption)
		mirrored.Active = w.Active
		out.Walls[i] = mirrored
	}
	return out
}
