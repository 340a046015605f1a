package resample

import "math"

// besselI0 evaluates the zeroth-order modified Bessel function of the first
// kind by its power series.
func besselI0(x float64) float64 {
	sum, term := 1.0, 1.0
	half := x / 2
	for k := 1; k < 500; k++ {
		term *= half / float64(k)
		t2 := term * term
		sum += t2
		if t2 < sum*1e-16 {
			break
		}
	}
	return sum
}

// kaiser evaluates the Kaiser window at u ∈ [-1, 1]; it is zero outside.
func kaiser(u, beta float64) float64 {
	if u < -1 || u > 1 {
		return 0
	}
	return besselI0(beta*math.Sqrt(1-u*u)) / besselI0(beta)
}

// sinc is the normalised sinc, sin(πx)/(πx).
func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// outputLength is the number of samples a conversion of n input samples
// from one rate to another produces.
func outputLength(n, from, to int) int {
	return int(math.Round(float64(n) * float64(to) / float64(from)))
}
