package utils

// Cycle steps current by direction through 0..last, wrapping at both ends
func Cycle[T ~int](current T, direction int, last T) T {
	n := int(last) + 1
	return T(((int(current)+direction)%n + n) % n)
}
