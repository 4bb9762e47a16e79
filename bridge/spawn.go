package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
)

// Spawner creates an execution context and returns the control side of a
// connection to the Host running inside it. Closing the returned Conn
// tears the execution context down.
type Spawner interface {
	Spawn(ctx context.Context) (*transport.Conn, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(ctx context.Context) (*transport.Conn, error)

func (f SpawnerFunc) Spawn(ctx context.Context) (*transport.Conn, error) {
	return f(ctx)
}

// InProcess runs a Host on a goroutine, connected through an in-memory
// pipe. The engine starts loading as soon as Spawn returns.
func InProcess(loader engine.Loader, opts ...HostOption) Spawner {
	return SpawnerFunc(func(ctx context.Context) (*transport.Conn, error) {
		ctl, srv := transport.Pipe()
		host := NewHost(loader, opts...)
		go func() {
			if err := host.Serve(ctx, srv); err != nil {
				Logger().Error("serve", zap.Error(err))
			}
			host.Close()
		}()
		return ctl, nil
	})
}

// Subprocess runs a Host in a child process that speaks the frame protocol
// on its stdin and stdout, such as `folkfriend worker`. The child's stderr
// is copied to the bridge logger.
func Subprocess(path string, args ...string) Spawner {
	return SpawnerFunc(func(ctx context.Context) (*transport.Conn, error) {
		cmd := exec.CommandContext(ctx, path, args...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stderr := &zapio.Writer{Log: Logger().With(zap.String("worker", path)), Level: zap.InfoLevel}
		cmd.Stderr = stderr

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start worker: %w", err)
		}
		Logger().Info("worker started", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))

		return transport.New(transport.Join(stdout, stdin, &worker{cmd: cmd, stderr: stderr})), nil
	})
}

// worker reaps the child once its stdin has been closed.
type worker struct {
	cmd    *exec.Cmd
	stderr *zapio.Writer
}

func (w *worker) Close() error {
	err := w.cmd.Wait()
	w.stderr.Close()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		Logger().Warn("worker exited", zap.Int("code", exitErr.ExitCode()))
		return fmt.Errorf("worker: %w", err)
	}
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("wait worker: %w", err)
	}
	Logger().Info("worker exited", zap.Int("code", 0))
	return nil
}
