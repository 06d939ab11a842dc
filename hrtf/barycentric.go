package hrtf

import "math"

// barycentricWeights holds the three weights from GetBarycentricCoordinates;
// a negative weight means the point lies outside the triangle.
type barycentricWeights struct {
	alpha, beta, gamma float64
}

// barycentric computes the barycentric coordinates of (x,y) in the triangle
// (x1,y1)-(x2,y2)-(x3,y3), matching CHRTF::GetBarycentricCoordinates: each
// weight is truncated to 3 decimal places, and a degenerate (collinear)
// triangle is rejected via a rounded-to-zero denominator.
func barycentric(x, y, x1, y1, x2, y2, x3, y3 float64) (barycentricWeights, bool) {
	denominator := (y2-y3)*(x1-x3) + (x3-x2)*(y1-y3)
	if math.Round(denominator) == 0 {
		return barycentricWeights{-1, -1, -1}, false
	}

	alpha := trunc3(((y2-y3)*(x-x3) + (x3-x2)*(y-y3)) / denominator)
	beta := trunc3(((y3-y1)*(x-x3) + (x1-x3)*(y-y3)) / denominator)
	gamma := trunc3(1.0 - alpha - beta)

	return barycentricWeights{alpha, beta, gamma}, true
}

func trunc3(v float64) float64 {
	return math.Trunc(1000*v) / 1000
}
