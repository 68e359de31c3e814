// Package tracking predicts where the target will be: the predicted intercept
// point solver, the pre-simulated candidate trajectories, and the selector
// that matches the observed track against those candidates.
package tracking

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultTolerance is the time-to-go convergence threshold in seconds.
	DefaultTolerance = 1e-4

	// DefaultMaxIterations caps the fixed-point refinement.
	DefaultMaxIterations = 50
)

// Solution is a predicted intercept point.
type Solution struct {
	// Point is where the interceptor is expected to meet the target (NED, ft)
	Point mgl64.Vec3 `json:"point"`

	// TimeToGo is the interceptor flight time to Point in seconds
	TimeToGo float64 `json:"time_to_go"`

	// Iterations used by the refinement
	Iterations int `json:"iterations"`

	// Converged is false when the iteration cap was hit; Point and TimeToGo
	// then hold the last estimate
	Converged bool `json:"converged"`
}

// SolvePIP computes the intercept point against a target flying at constant
// velocity from targetPos.
//
// Parameters:
//   - targetPos, targetVel: current target kinematics
//   - interceptorPos: current interceptor (or launcher) position
//   - speed: assumed interceptor speed in ft/s
func SolvePIP(targetPos, targetVel, interceptorPos mgl64.Vec3, speed float64) Solution {
	predict := func(tgo float64) mgl64.Vec3 {
		return targetPos.Add(targetVel.Mul(tgo))
	}
	return solve(predict, targetPos, targetVel, interceptorPos, speed)
}

// SolveAlong computes the intercept point against a target that follows tr,
// starting from flight time now.
func SolveAlong(tr *Trajectory, now float64, interceptorPos mgl64.Vec3, speed float64) Solution {
	s := tr.StateAt(now)
	predict := func(tgo float64) mgl64.Vec3 {
		return tr.PositionAt(now + tgo)
	}
	return solve(predict, s.Position, s.Velocity, interceptorPos, speed)
}

// solve runs the fixed-point refinement
//
//	tgo[i+1] = |predict(tgo[i]) - interceptorPos| / speed
//
// seeded with range over closing speed.
func solve(predict func(float64) mgl64.Vec3, targetPos, targetVel, interceptorPos mgl64.Vec3, speed float64) Solution {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return Solution{Point: targetPos, TimeToGo: math.Inf(1)}
	}

	los := targetPos.Sub(interceptorPos)
	r := los.Len()
	if r < 1e-9 {
		return Solution{Point: targetPos, TimeToGo: 0, Converged: true}
	}

	// Seed: straight-line range over closing speed. An opening target falls
	// back to the interceptor's own speed.
	tgo := r / speed
	if closing := speed - targetVel.Dot(los.Mul(1/r)); closing > 0 {
		tgo = r / closing
	}

	point := predict(tgo)
	for i := 1; i <= DefaultMaxIterations; i++ {
		next := point.Sub(interceptorPos).Len() / speed
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return Solution{Point: point, TimeToGo: tgo, Iterations: i}
		}

		converged := math.Abs(next-tgo) < DefaultTolerance
		tgo = next
		point = predict(tgo)
		if converged {
			return Solution{Point: point, TimeToGo: tgo, Iterations: i, Converged: true}
		}
	}

	return Solution{Point: point, TimeToGo: tgo, Iterations: DefaultMaxIterations}
}
