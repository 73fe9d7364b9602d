// Package detector finds hands in camera frames: MediaPipe landmarks and the
// image regions derived from them.
package detector

import "math"

// MediaPipe hand landmark indices.
const (
	Wrist = iota
	ThumbCMC
	ThumbMCP
	ThumbIP
	ThumbTip
	IndexMCP
	IndexPIP
	IndexDIP
	IndexTip
	MiddleMCP
	MiddlePIP
	MiddleDIP
	MiddleTip
	RingMCP
	RingPIP
	RingDIP
	RingTip
	PinkyMCP
	PinkyPIP
	PinkyDIP
	PinkyTip

	NumLandmarks
)

// Point3D is a landmark coordinate. X and Y are normalized to the frame
// (0..1); Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns p - q.
func (p Point3D) Sub(q Point3D) Point3D {
	return Point3D{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Scale returns p multiplied by f.
func (p Point3D) Scale(f float64) Point3D {
	return Point3D{X: p.X * f, Y: p.Y * f, Z: p.Z * f}
}

// Dist is the Euclidean distance between p and q.
func (p Point3D) Dist(q Point3D) float64 {
	d := p.Sub(q)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// HandLandmarks is one detected hand.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"`
	Score      float64               `json:"score"`
}

// Normalize returns a copy translated so the wrist is the origin and scaled
// so the wrist to middle knuckle distance is 1. A degenerate hand whose
// knuckle sits on the wrist is only translated. Nil stays nil.
func (h *HandLandmarks) Normalize() *HandLandmarks {
	if h == nil {
		return nil
	}

	out := &HandLandmarks{Handedness: h.Handedness, Score: h.Score}
	origin := h.Points[Wrist]
	span := h.Points[MiddleMCP].Dist(origin)

	factor := 1.0
	if span >= 1e-10 {
		factor = 1 / span
	}
	for i, p := range h.Points {
		out.Points[i] = p.Sub(origin).Scale(factor)
	}
	return out
}

// Extent returns the smallest and largest X and Y over all points.
func (h HandLandmarks) Extent() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range h.Points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}
