// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package bitvec defines a bit vector type useful for
// tracking which slots of a fixed set of resources are
// in use (e.g., the images of a swapchain).
package bitvec

import (
	"unsafe"
)

// Uint represents the granularity of a bit vector.
type Uint interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// V is a fixed-length bit vector with custom granularity.
// The zero value is an empty vector.
type V[T Uint] struct {
	s   []T
	n   int
	rem int
}

// New creates a vector of n unset bits.
func New[T Uint](n int) *V[T] {
	if n < 0 {
		n = 0
	}
	v := &V[T]{n: n, rem: n}
	nb := v.nbit()
	v.s = make([]T, (n+nb-1)/nb)
	return v
}

// nbit returns the number of bits in T.
func (*V[T]) nbit() int { return int(unsafe.Sizeof(T(0))) * 8 }

// Len returns the number of bits in the vector.
func (v *V[_]) Len() int { return v.n }

// Rem returns the number of unset bits in the vector.
func (v *V[_]) Rem() int { return v.rem }

// Set sets a given bit.
func (v *V[T]) Set(index int) {
	n := v.nbit()
	i := index / n
	b := T(1) << (index % n)
	if v.s[i]&b == 0 {
		v.s[i] |= b
		v.rem--
	}
}

// Unset unsets a given bit.
func (v *V[T]) Unset(index int) {
	n := v.nbit()
	i := index / n
	b := T(1) << (index % n)
	if v.s[i]&b != 0 {
		v.s[i] &^= b
		v.rem++
	}
}

// IsSet checks whether a given bit is set.
func (v *V[T]) IsSet(index int) bool {
	n := v.nbit()
	return v.s[index/n]&(T(1)<<(index%n)) != 0
}

// Search locates the lowest unset bit in the vector.
// It fails only when v.Rem() == 0.
func (v *V[T]) Search() (index int, ok bool) {
	return v.SearchFrom(0)
}

// SearchFrom locates the first unset bit at or after
// start, wrapping around to the beginning of the vector.
// It fails only when v.Rem() == 0.
func (v *V[T]) SearchFrom(start int) (index int, ok bool) {
	if v.rem == 0 {
		return
	}
	if start < 0 || start >= v.n {
		start = 0
	}
	nb := v.nbit()
	for k := 0; k < v.n; k++ {
		i := (start + k) % v.n
		// Skip whole Uints that have no unset bits.
		if i%nb == 0 && v.s[i/nb] == ^T(0) {
			k += nb - 1
			continue
		}
		if !v.IsSet(i) {
			return i, true
		}
	}
	return
}

// Clear unsets every bit in the vector.
func (v *V[T]) Clear() {
	clear(v.s)
	v.rem = v.n
}
