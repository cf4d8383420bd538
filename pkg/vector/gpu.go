package vector

import (
	"sync"
	"unsafe"
)

var (
	gpuOnce  sync.Once
	gpuReady bool
)

// gpuEnabled reports whether the optional GPU cosine backend loaded
// successfully and self-reports as available. Safe to call repeatedly;
// the underlying dlopen only happens once.
func gpuEnabled() bool {
	gpuOnce.Do(func() {
		if err := initGPULibrary(); err != nil {
			return
		}
		gpuReady = gpu_available() == 1
	})
	return gpuReady
}

// gpuCosine computes cosine(a, b) on the GPU device tensor. ok is false
// if the backend is unavailable or the call panics (e.g. a stale
// function pointer from a library that unloaded mid-process), in which
// case the caller falls back to the CPU/SIMD path.
func gpuCosine(a, b []float32) (score float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	var out float32
	gpu_cosine_batch(
		unsafe.Pointer(&a[0]), uint32(len(a)),
		unsafe.Pointer(&b[0]), 1,
		unsafe.Pointer(&out),
	)
	return float64(out), true
}
