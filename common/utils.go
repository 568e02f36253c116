package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Float64s widens a float slice to float64, allocating a new slice. Used to
// hand 32-bit field data to statistics routines that operate on float64.
//
// Parameters:
//   - values: the slice to widen
//
// Returns:
//   - []float64: a newly allocated widened copy
func Float64s[T ~float32 | ~float64](values []T) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
