package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
)

// Engine reactor exports.
//
// The engine is a reactor-model module: the host calls _initialize once,
// then the ff_* entry points repeatedly. String arguments are passed as
// (ptr, len) pairs in guest memory allocated with malloc. String results
// are returned as an i64 packing ptr<<32 | len of a guest buffer that the
// host releases with free.
const (
	ExportMalloc     = "malloc"
	ExportFree       = "free"
	ExportInitialize = "_initialize"

	// Signature: ff_version() -> i64
	ExportVersion = "ff_version"

	// Signature: ff_load_index(ptr: i32, len: i32) -> i32
	// Returns: 0 when the index was accepted.
	ExportLoadIndex = "ff_load_index"

	// Signature: ff_run_transcription_query(ptr: i32, len: i32) -> i64
	ExportTranscriptionQuery = "ff_run_transcription_query"

	// Signature: ff_run_name_query(ptr: i32, len: i32) -> i64
	ExportNameQuery = "ff_run_name_query"

	// Signature: ff_contour_to_abc(ptr: i32, len: i32) -> i64
	ExportContourToABC = "ff_contour_to_abc"
)

// WasmLoader instantiates the compiled engine with wazero.
type WasmLoader struct {
	source func() ([]byte, error)
	cfg    wasmConfig
}

// NewWasmLoader returns a loader for the engine binary at path. The file is
// read when Load is called, not before.
func NewWasmLoader(path string, opts ...Option) *WasmLoader {
	return newWasmLoader(func() ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read engine module: %w", err)
		}
		return data, nil
	}, opts)
}

// NewWasmLoaderFromBytes returns a loader for an in-memory engine binary.
func NewWasmLoaderFromBytes(module []byte, opts ...Option) *WasmLoader {
	return newWasmLoader(func() ([]byte, error) { return module, nil }, opts)
}

func newWasmLoader(source func() ([]byte, error), opts []Option) *WasmLoader {
	cfg := defaultWasmConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &WasmLoader{source: source, cfg: cfg}
}

// Load compiles and instantiates the engine module.
func (l *WasmLoader) Load(ctx context.Context) (Engine, error) {
	start := time.Now()
	log := Logger().With(zap.String("module", l.cfg.moduleName))
	log.Debug("loading engine module")

	module, err := l.source()
	if err != nil {
		return nil, err
	}

	var cache wazero.CompilationCache
	if l.cfg.diskCache {
		cacheDir := l.cfg.cacheDir
		if cacheDir == "" {
			cacheDir = DefaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig()
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if l.cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(l.cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	e := &wasmEngine{runtime: rt, cache: cache}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		e.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, module)
	if err != nil {
		e.Close(ctx)
		return nil, fmt.Errorf("compile engine: %w", err)
	}

	guestLog := &zapio.Writer{Log: log.Named("guest"), Level: zap.DebugLevel}
	e.guestLog = guestLog

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(guestLog).
		WithStderr(guestLog).
		WithName(l.cfg.moduleName).
		WithStartFunctions() // reactor: no _start

	mod, err := rt.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		e.Close(ctx)
		return nil, fmt.Errorf("instantiate engine: %w", err)
	}
	e.mod = mod

	if initFn := mod.ExportedFunction(ExportInitialize); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			e.Close(ctx)
			return nil, fmt.Errorf("%s failed: %w", ExportInitialize, err)
		}
	}

	if err := e.bindExports(); err != nil {
		e.Close(ctx)
		return nil, err
	}

	log.Info("engine module loaded", zap.Duration("duration", time.Since(start)))
	return e, nil
}

type wasmEngine struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	mod      api.Module
	guestLog *zapio.Writer

	malloc api.Function
	free   api.Function

	version            api.Function
	loadIndex          api.Function
	transcriptionQuery api.Function
	nameQuery          api.Function
	contourToABC       api.Function
}

func (e *wasmEngine) bindExports() error {
	exports := []struct {
		name string
		dst  *api.Function
	}{
		{ExportMalloc, &e.malloc},
		{ExportFree, &e.free},
		{ExportVersion, &e.version},
		{ExportLoadIndex, &e.loadIndex},
		{ExportTranscriptionQuery, &e.transcriptionQuery},
		{ExportNameQuery, &e.nameQuery},
		{ExportContourToABC, &e.contourToABC},
	}
	for _, exp := range exports {
		fn := e.mod.ExportedFunction(exp.name)
		if fn == nil {
			return fmt.Errorf("%w: %s", ErrMissingExport, exp.name)
		}
		*exp.dst = fn
	}
	return nil
}

func (e *wasmEngine) Version(ctx context.Context) (string, error) {
	results, err := e.version.Call(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ExportVersion, err)
	}
	return e.takeString(ctx, ExportVersion, results[0])
}

func (e *wasmEngine) LoadIndex(ctx context.Context, index []byte) error {
	ptr, err := e.alloc(ctx, index)
	if err != nil {
		return err
	}
	defer e.freePtr(ctx, ptr)

	results, err := e.loadIndex.Call(ctx, uint64(ptr), uint64(len(index)))
	if err != nil {
		return fmt.Errorf("%s: %w", ExportLoadIndex, err)
	}
	if status := int32(results[0]); status != 0 {
		return fmt.Errorf("%w: engine status %d", ErrIndexRejected, status)
	}
	return nil
}

func (e *wasmEngine) TranscriptionQuery(ctx context.Context, query string) (string, error) {
	return e.callString(ctx, ExportTranscriptionQuery, e.transcriptionQuery, query)
}

func (e *wasmEngine) NameQuery(ctx context.Context, query string) (string, error) {
	return e.callString(ctx, ExportNameQuery, e.nameQuery, query)
}

func (e *wasmEngine) ContourToABC(ctx context.Context, contour string) (string, error) {
	return e.callString(ctx, ExportContourToABC, e.contourToABC, contour)
}

// callString passes arg to fn and returns its string result.
func (e *wasmEngine) callString(ctx context.Context, name string, fn api.Function, arg string) (string, error) {
	ptr, err := e.alloc(ctx, []byte(arg))
	if err != nil {
		return "", err
	}
	defer e.freePtr(ctx, ptr)

	results, err := fn.Call(ctx, uint64(ptr), uint64(len(arg)))
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return e.takeString(ctx, name, results[0])
}

// alloc copies b into guest memory. An empty b still gets a valid pointer.
func (e *wasmEngine) alloc(ctx context.Context, b []byte) (uint32, error) {
	size := len(b)
	if size == 0 {
		size = 1
	}
	results, err := e.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("malloc returned null")
	}
	if len(b) > 0 && !e.mod.Memory().Write(ptr, b) {
		e.freePtr(ctx, ptr)
		return 0, fmt.Errorf("failed to write %d bytes to guest memory", len(b))
	}
	return ptr, nil
}

// takeString reads and frees a packed ptr<<32|len guest buffer.
func (e *wasmEngine) takeString(ctx context.Context, name string, packed uint64) (string, error) {
	ptr, size := uint32(packed>>32), uint32(packed)
	if ptr == 0 {
		return "", fmt.Errorf("%s returned null", name)
	}
	defer e.freePtr(ctx, ptr)

	view, ok := e.mod.Memory().Read(ptr, size)
	if !ok {
		return "", fmt.Errorf("%s: result out of range (ptr=%d len=%d)", name, ptr, size)
	}
	return string(view), nil
}

func (e *wasmEngine) freePtr(ctx context.Context, ptr uint32) {
	if ptr != 0 {
		if _, err := e.free.Call(ctx, uint64(ptr)); err != nil {
			Logger().Warn("failed to free guest memory",
				zap.Uint32("ptr", ptr),
				zap.Error(err))
		}
	}
}

// Close releases the module, the runtime and the compilation cache.
func (e *wasmEngine) Close(ctx context.Context) error {
	var err error
	if e.mod != nil {
		err = multierr.Append(err, e.mod.Close(ctx))
	}
	err = multierr.Append(err, e.runtime.Close(ctx))
	if e.cache != nil {
		err = multierr.Append(err, e.cache.Close(ctx))
	}
	if e.guestLog != nil {
		err = multierr.Append(err, e.guestLog.Close())
	}
	return err
}
