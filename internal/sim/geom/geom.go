// Package geom holds the grid coordinates shared by the simulation and the cognition layer.
package geom

import "fmt"

// Pos is a tile inside a named area. Tiles in different areas are never adjacent.
type Pos struct {
	Area string `json:"area"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

func (p Pos) String() string { return fmt.Sprintf("%s(%d,%d)", p.Area, p.X, p.Y) }

// Unreachable is returned by Distance for positions in different areas.
const Unreachable = int(^uint(0) >> 1)

// Distance is the Chebyshev (king-move) distance between two tiles.
func Distance(a, b Pos) int {
	if a.Area != b.Area {
		return Unreachable
	}
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// Within reports whether b is at most r tiles from a.
func Within(a, b Pos, r int) bool {
	return Distance(a, b) <= r
}

// Step moves one tile from `from` toward `to` (diagonals allowed).
func Step(from, to Pos) Pos {
	if from.Area != to.Area {
		return from
	}
	return Pos{Area: from.Area, X: from.X + sign(to.X-from.X), Y: from.Y + sign(to.Y-from.Y)}
}

// Path returns the tiles visited walking from `from` to `to`, excluding `from`.
// An empty path means the entity is already there.
func Path(from, to Pos) []Pos {
	if from.Area != to.Area || from == to {
		return nil
	}
	out := make([]Pos, 0, Distance(from, to))
	cur := from
	for cur != to {
		cur = Step(cur, to)
		out = append(out, cur)
	}
	return out
}

// Bounds is the inclusive rectangle of valid tiles in an area.
type Bounds struct {
	W int `json:"w"`
	H int `json:"h"`
}

func (b Bounds) Contains(p Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < b.W && p.Y < b.H
}

// Clamp pulls p into the rectangle.
func (b Bounds) Clamp(p Pos) Pos {
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if b.W > 0 && p.X >= b.W {
		p.X = b.W - 1
	}
	if b.H > 0 && p.Y >= b.H {
		p.Y = b.H - 1
	}
	return p
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
