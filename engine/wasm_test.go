package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// emptyModule is the smallest valid WASM binary: magic number and version.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestWasmLoaderMissingFile(t *testing.T) {
	loader := NewWasmLoader(filepath.Join(t.TempDir(), "missing.wasm"))

	_, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected error for missing module file")
	}
	if !strings.Contains(err.Error(), "read engine module") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestWasmLoaderInvalidBinary(t *testing.T) {
	loader := NewWasmLoaderFromBytes([]byte("not wasm"))

	_, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected error for invalid module")
	}
	if !strings.Contains(err.Error(), "compile engine") {
		t.Errorf("expected compile error, got %v", err)
	}
}

func TestWasmLoaderMissingExports(t *testing.T) {
	loader := NewWasmLoaderFromBytes(emptyModule, WithMemoryLimit(MemoryLimit16MB))

	_, err := loader.Load(context.Background())
	if !errors.Is(err, ErrMissingExport) {
		t.Fatalf("expected ErrMissingExport, got %v", err)
	}
	if !strings.Contains(err.Error(), ExportMalloc) {
		t.Errorf("expected first missing export to be %s, got %v", ExportMalloc, err)
	}
}

func TestWasmLoaderDiskCache(t *testing.T) {
	dir := t.TempDir()
	loader := NewWasmLoaderFromBytes(emptyModule, WithDiskCache(dir), WithModuleName("cached"))

	if loader.cfg.cacheDir != dir || !loader.cfg.diskCache {
		t.Fatalf("disk cache option not applied: %+v", loader.cfg)
	}
	if loader.cfg.moduleName != "cached" {
		t.Errorf("module name = %q, want cached", loader.cfg.moduleName)
	}

	// The module compiles through the cache and only fails at export binding.
	if _, err := loader.Load(context.Background()); !errors.Is(err, ErrMissingExport) {
		t.Fatalf("expected ErrMissingExport, got %v", err)
	}
}

func TestDefaultCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	if got := DefaultCacheDir(); got != filepath.Join("/tmp/xdg", "folkfriend") {
		t.Errorf("DefaultCacheDir() = %q", got)
	}
}

func TestLoaderFunc(t *testing.T) {
	want := errors.New("load failed")
	var loader Loader = LoaderFunc(func(ctx context.Context) (Engine, error) {
		return nil, want
	})
	if _, err := loader.Load(context.Background()); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestWasmEngineVersionAfterInitialize(t *testing.T) {
	e := loadMock(t)

	v, err := e.Version(context.Background())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	// The mock reports "cold" until _initialize has run.
	if v != "guest-1" {
		t.Errorf("Version() = %q, want guest-1", v)
	}
}

func TestWasmEngineLoadIndex(t *testing.T) {
	e := loadMock(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		index    string
		rejected bool
	}{
		{"object", `{"settings": {}}`, false},
		{"array", `[]`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.LoadIndex(ctx, []byte(tt.index))
			if !tt.rejected {
				if err != nil {
					t.Fatalf("expected index to be accepted, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrIndexRejected) {
				t.Fatalf("expected ErrIndexRejected, got %v", err)
			}
			if !strings.Contains(err.Error(), "engine status 3") {
				t.Errorf("expected engine status in error, got %v", err)
			}
		})
	}
}

func TestWasmEngineTranscriptionQuery(t *testing.T) {
	e := loadMock(t)
	want := `[{"tune_id":"1","setting_id":"101","display_name":"The Kesh","score":1}]`

	// Repeated calls allocate fresh argument buffers each time.
	for i := 0; i < 3; i++ {
		got, err := e.TranscriptionQuery(context.Background(), "abcdef")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("call %d: got %q, want %q", i, got, want)
		}
	}
}

func TestWasmEngineStringArgumentsRoundTrip(t *testing.T) {
	e := loadMock(t)
	ctx := context.Background()

	for _, q := range []string{"kesh", "Ríl Mhuineacháin", ""} {
		got, err := e.NameQuery(ctx, q)
		if err != nil {
			t.Fatalf("NameQuery(%q): %v", q, err)
		}
		if got != q {
			t.Errorf("NameQuery(%q) = %q", q, got)
		}
	}
}

func TestWasmEngineContourToABC(t *testing.T) {
	e := loadMock(t)

	tests := []struct {
		contour string
		want    string
	}{
		{"mmo", "ABC:mmo"},
		{"", "ABC:"},
	}
	for _, tt := range tests {
		got, err := e.ContourToABC(context.Background(), tt.contour)
		if err != nil {
			t.Fatalf("ContourToABC(%q): %v", tt.contour, err)
		}
		if got != tt.want {
			t.Errorf("ContourToABC(%q) = %q, want %q", tt.contour, got, tt.want)
		}
	}
}

func TestWasmEngineMemoryLimit(t *testing.T) {
	e := loadMock(t, WithMemoryLimit(MemoryLimit16MB), WithDiskCache(t.TempDir()))

	if _, err := e.Version(context.Background()); err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := e.Close(context.Background()); err != nil {
		t.Errorf("close: %v", err)
	}
}
