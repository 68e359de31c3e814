package dynamics

import "github.com/go-gl/mathgl/mgl64"

// ClampMagnitude scales v down so that |v| <= limit. Vectors already inside the
// limit are returned unchanged.
func ClampMagnitude(v mgl64.Vec3, limit float64) mgl64.Vec3 {
	n := v.Len()
	if n <= limit || n == 0 {
		return v
	}
	return v.Mul(limit / n)
}

// Perpendicular removes the component of v along dir.
// A zero dir leaves v unchanged.
func Perpendicular(v, dir mgl64.Vec3) mgl64.Vec3 {
	dd := dir.Dot(dir)
	if dd < 1e-18 {
		return v
	}
	return v.Sub(dir.Mul(v.Dot(dir) / dd))
}

// LateralLimit returns the acceleration actually applied for a guidance
// command: the part perpendicular to the velocity, clamped to limit.
// Interceptors turn; they never speed up or slow down under guidance.
func LateralLimit(cmd, velocity mgl64.Vec3, limit float64) mgl64.Vec3 {
	return ClampMagnitude(Perpendicular(cmd, velocity), limit)
}
