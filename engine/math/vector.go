package math

import m "math"

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec4 represents a 4D vector, used for colours and uniform values.
type Vec4 struct {
	X, Y, Z, W float32
}

func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

// NewVec2Polar returns the point at the given radius and angle in radians.
func NewVec2Polar(radius, angle float32) Vec2 {
	return Vec2{X: radius * Cos(angle), Y: radius * Sin(angle)}
}

func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Rotate turns v counter-clockwise by angle radians around the origin.
func (v Vec2) Rotate(angle float32) Vec2 {
	s, c := Sin(angle), Cos(angle)
	return Vec2{X: v.X*c - v.Y*s, Y: v.X*s + v.Y*c}
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

// Lerp interpolates between v and other; t is clamped to [0, 1].
func (v Vec4) Lerp(other Vec4, t float32) Vec4 {
	t = Clamp(t, 0, 1)
	return Vec4{
		X: v.X + (other.X-v.X)*t,
		Y: v.Y + (other.Y-v.Y)*t,
		Z: v.Z + (other.Z-v.Z)*t,
		W: v.W + (other.W-v.W)*t,
	}
}

func (v Vec4) Array() [4]float32 {
	return [4]float32{v.X, v.Y, v.Z, v.W}
}

func Sin(x float32) float32 {
	return float32(m.Sin(float64(x)))
}

func Cos(x float32) float32 {
	return float32(m.Cos(float64(x)))
}
