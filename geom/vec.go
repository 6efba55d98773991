/*package geom contains the spatial discretizations used to bin particles:
row-major flat cell indices, per-axis cell edges and Cartesian or cylindrical
grids built on top of them.
*/
package geom

import (
	"math"
)

// Vec is a three dimensional vector.
type Vec [3]float64

// Add returns v + u.
func (v Vec) Add(u Vec) Vec {
	return Vec{v[0] + u[0], v[1] + u[1], v[2] + u[2]}
}

// Sub returns v - u.
func (v Vec) Sub(u Vec) Vec {
	return Vec{v[0] - u[0], v[1] - u[1], v[2] - u[2]}
}

// Scale returns k * v.
func (v Vec) Scale(k float64) Vec {
	return Vec{k * v[0], k * v[1], k * v[2]}
}

func (v Vec) Dot(u Vec) float64 {
	return v[0]*u[0] + v[1]*u[1] + v[2]*u[2]
}

// Norm2 returns the squared length of v.
func (v Vec) Norm2() float64 { return v.Dot(v) }

// Norm returns the length of v.
func (v Vec) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// IsNaN returns true if any component of v is NaN.
func (v Vec) IsNaN() bool {
	return math.IsNaN(v[0]) || math.IsNaN(v[1]) || math.IsNaN(v[2])
}

// MinMax returns the componentwise minimum and maximum of a non-empty set of
// vectors. NaN vectors are skipped; ok is false if nothing remains.
func MinMax(vs []Vec) (min, max Vec, ok bool) {
	for i := 0; i < 3; i++ {
		min[i], max[i] = math.Inf(+1), math.Inf(-1)
	}
	for _, v := range vs {
		if v.IsNaN() {
			continue
		}
		ok = true
		for i := 0; i < 3; i++ {
			min[i], max[i] = fMinMax(min[i], max[i], v[i])
		}
	}
	return min, max, ok
}

func fMinMax(min, max, x float64) (float64, float64) {
	if x < min {
		min = x
	}
	if x > max {
		max = x
	}
	return min, max
}
