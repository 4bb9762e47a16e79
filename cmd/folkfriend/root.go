package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hwellmann/folkfriend"
	"github.com/hwellmann/folkfriend/bridge"
	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/engine/native"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	envEngine = "FOLKFRIEND_ENGINE"
	envIndex  = "FOLKFRIEND_INDEX"
)

var rootCmd = &cobra.Command{
	Use:   "folkfriend",
	Short: "Folk tune search over an isolated search engine",
	Long: `folkfriend - Search a folk tune index by name or by melodic contour.

The search engine runs in its own execution context: a worker goroutine by
default, or a child process with --subprocess. Without --engine the built-in
native engine is used; with --engine a compiled WebAssembly engine is loaded.

Environment:
  FOLKFRIEND_ENGINE   default for --engine
  FOLKFRIEND_INDEX    default for --index`,
	Version:           folkfriend.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("engine", os.Getenv(envEngine), "Path to a WebAssembly engine (default: native engine)")
	rootCmd.PersistentFlags().String("index", os.Getenv(envIndex), "Tune index JSON loaded on startup")
	rootCmd.PersistentFlags().Bool("subprocess", false, "Run the engine in a child process")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
	rootCmd.PersistentFlags().String("memory", "", "Engine memory limit: 16mb, 64mb, 256mb, 1gb")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "How long to wait for a result (0 waits forever)")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	log, err := newLogger(level)
	if err != nil {
		return err
	}
	bridge.SetLogger(log)
	engine.SetLogger(log)
	return nil
}

// newLogger builds a console logger on stderr. Stdout is reserved for
// results and, in worker mode, for protocol frames.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "16mb":
		return engine.MemoryLimit16MB
	case "64mb":
		return engine.MemoryLimit64MB
	case "256mb":
		return engine.MemoryLimit256MB
	case "1gb":
		return engine.MemoryLimit1GB
	default:
		return 0 // use default
	}
}

// engineLoader selects the engine named by the persistent flags.
func engineLoader(cmd *cobra.Command) engine.Loader {
	path, _ := cmd.Flags().GetString("engine")
	if path == "" {
		return native.Loader(0)
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	memory, _ := cmd.Flags().GetString("memory")

	var opts []engine.Option
	if !noCache {
		opts = append(opts, engine.WithDiskCache())
	}
	if pages := parseMemoryLimit(memory); pages > 0 {
		opts = append(opts, engine.WithMemoryLimit(pages))
	}
	return engine.NewWasmLoader(path, opts...)
}

// workerArgs forwards the engine flags to a `folkfriend worker` child.
func workerArgs(cmd *cobra.Command) []string {
	args := []string{"worker"}
	for _, name := range []string{"engine", "memory", "log-level"} {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			args = append(args, "--"+name, v)
		}
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		args = append(args, "--no-cache")
	}
	return args
}

func bridgeOptions(cmd *cobra.Command) ([]bridge.Option, error) {
	subprocess, _ := cmd.Flags().GetBool("subprocess")
	if !subprocess {
		return []bridge.Option{bridge.WithLoader(engineLoader(cmd))}, nil
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return []bridge.Option{bridge.WithSpawner(bridge.Subprocess(self, workerArgs(cmd)...))}, nil
}

// connect returns the process-wide proxy and loads the --index file into
// it, if one was given.
func connect(cmd *cobra.Command) (*bridge.Proxy, error) {
	opts, err := bridgeOptions(cmd)
	if err != nil {
		return nil, err
	}
	if err := bridge.Configure(opts...); err != nil && !errors.Is(err, bridge.ErrAlreadyStarted) {
		return nil, err
	}

	p, err := bridge.Default()
	if err != nil {
		return nil, err
	}

	indexPath, _ := cmd.Flags().GetString("index")
	if indexPath == "" {
		return p, nil
	}

	ctx, cancel := callContext(cmd)
	defer cancel()
	if err := loadIndexFile(ctx, p, indexPath); err != nil {
		return nil, err
	}
	return p, nil
}

func loadIndexFile(ctx context.Context, p *bridge.Proxy, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	if err := p.LoadIndexFromJSONObj(ctx, data); err != nil {
		return fmt.Errorf("load index %s: %w", path, err)
	}
	bridge.Logger().Info("index loaded", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

func requireIndex(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("index"); path == "" {
		return fmt.Errorf("no index: use --index or set %s", envIndex)
	}
	return nil
}

// callContext bounds how long a command waits for a reply.
func callContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
