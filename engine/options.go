package engine

import (
	"os"
	"path/filepath"
)

// Option configures a WasmLoader.
type Option func(*wasmConfig)

type wasmConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = default (4GB)
	moduleName       string
}

func defaultWasmConfig() wasmConfig {
	return wasmConfig{
		moduleName: "folkfriend",
	}
}

// WithDiskCache enables a persistent compilation cache so the engine binary
// is only compiled once across process starts.
// Optionally provide a custom directory; otherwise uses ~/.cache/folkfriend
// or XDG_CACHE_HOME/folkfriend.
//
// Examples:
//
//	engine.NewWasmLoader(path, engine.WithDiskCache())            // default dir
//	engine.NewWasmLoader(path, engine.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) Option {
	return func(c *wasmConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum memory available to the engine module.
// Each page is 64KB. Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) Option {
	return func(c *wasmConfig) {
		c.memoryLimitPages = pages
	}
}

// WithModuleName sets the name the engine module is instantiated under.
func WithModuleName(name string) Option {
	return func(c *wasmConfig) {
		c.moduleName = name
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// DefaultCacheDir returns the directory used by WithDiskCache when none is given.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "folkfriend")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "folkfriend")
	}
	return filepath.Join(os.TempDir(), "folkfriend-cache")
}
