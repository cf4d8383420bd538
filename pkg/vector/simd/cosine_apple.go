//go:build !noasm && darwin && arm64

package simd

import "unsafe"

//go:noescape,nosplit
func f32_cosine_distance(x unsafe.Pointer, y unsafe.Pointer, result unsafe.Pointer, size uint64)

//go:noescape,nosplit
func f32_dot_product(x unsafe.Pointer, y unsafe.Pointer, result unsafe.Pointer, size uint64)
