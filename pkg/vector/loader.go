// Dynamic library loader for the optional GPU cosine-similarity backend,
// loaded via purego (no cgo). The backend is a small shared library
// exposing a batch cosine kernel; its absence is not an error, just a
// fallback to the CPU/SIMD path in index.go.
package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	libptr          uintptr
	libOnce         sync.Once
	libErr          error
	gpu_init        func(log_level int) int32
	gpu_available   func() int32
	gpu_cosine_batch func(query unsafe.Pointer, dim uint32, vectors unsafe.Pointer, n uint32, out unsafe.Pointer)
	gpu_shutdown    func()
)

// initGPULibrary lazily loads the GPU backend shared library on first use.
func initGPULibrary() error {
	libOnce.Do(func() {
		libpath, err := findGPULib()
		if err != nil {
			libErr = err
			return
		}
		if libptr, err = load(libpath); err != nil {
			libErr = err
			return
		}

		purego.RegisterLibFunc(&gpu_init, libptr, "gpu_init")
		purego.RegisterLibFunc(&gpu_available, libptr, "gpu_available")
		purego.RegisterLibFunc(&gpu_cosine_batch, libptr, "gpu_cosine_batch")
		purego.RegisterLibFunc(&gpu_shutdown, libptr, "gpu_shutdown")

		gpu_init(2)
	})
	return libErr
}

// --------------------------------- Library Lookup ---------------------------------

func findGPULib() (string, error) {
	switch runtime.GOOS {
	case "windows":
		return findLibrary("cognidb_gpu.dll", runtime.GOOS)
	case "darwin":
		return findLibrary("libcognidb_gpu.dylib", runtime.GOOS)
	default:
		return findLibrary("libcognidb_gpu.so", runtime.GOOS)
	}
}

func findLibrary(name, goos string) (string, error) {
	dirs := libDirs(goos)
	checked := make([]string, 0, len(dirs))

	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		checked = append(checked, path)
	}

	return "", fmt.Errorf("library '%s' not found, checked following paths:\n\t - %s",
		name, strings.Join(checked, "\n\t - "))
}

func libDirs(goos string) []string {
	dirs := []string{"/usr/lib", "/usr/local/lib"}

	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}

	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
		current := wd
		for i := 0; i < 3; i++ {
			parent := filepath.Dir(current)
			if parent == current || parent == "." || parent == "" {
				break
			}
			dirs = append(dirs, parent)
			current = parent
		}
	}

	switch goos {
	case "windows":
		if sys := os.Getenv("SYSTEMROOT"); sys != "" {
			dirs = append(dirs, filepath.Join(sys, "System32"))
		}
	case "darwin":
		dirs = append(dirs, "/opt/homebrew/lib")
	}

	for _, envKey := range []string{"LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH"} {
		if val := os.Getenv(envKey); val != "" {
			dirs = append(dirs, strings.Split(val, ":")...)
		}
	}

	if goos == "windows" {
		if val := os.Getenv("PATH"); val != "" {
			dirs = append(dirs, strings.Split(val, ";")...)
		}
	}

	return dirs
}

// --------------------------------- Exported Helpers ---------------------------------

// LibDirs returns the list of directories searched for the shared library.
// Exported for testing.
func LibDirs(goos string) []string {
	return libDirs(goos)
}

// FindLibrary is exported for testing.
func FindLibrary(name, goos string) (string, error) {
	return findLibrary(name, goos)
}

// IsGPULibraryAvailable checks if the GPU backend library can be found
// without loading it.
func IsGPULibraryAvailable() bool {
	_, err := findGPULib()
	return err == nil
}

// LibraryNotFoundError is a sentinel check.
func LibraryNotFoundError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
