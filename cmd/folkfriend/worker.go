package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hwellmann/folkfriend/bridge"
	"github.com/hwellmann/folkfriend/transport"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve the search engine on stdin/stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// runWorker is the execution context of a --subprocess parent. It exits
// when the parent closes stdin.
func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := bridge.NewHost(engineLoader(cmd))
	defer host.Close()

	return host.Serve(ctx, transport.Stdio())
}
