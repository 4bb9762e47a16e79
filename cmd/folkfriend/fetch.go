package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hwellmann/folkfriend/bridge"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url> <output>",
	Short: "Download a tune index or engine binary",
	Long: `Download a file such as a tune index or engine binary.

The download is skipped if the output already exists, unless --force is set.
Data is written to a temporary file and moved into place when complete.`,
	Args: cobra.ExactArgs(2),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Bool("force", false, "Download even if the output exists")
	fetchCmd.Flags().Duration("fetch-timeout", 5*time.Minute, "Download timeout")
	rootCmd.AddCommand(fetchCmd)
}

// fetch downloads url to output. It reports false if output already
// existed and force is unset.
func fetch(ctx context.Context, client *http.Client, url, output string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(output); err == nil {
			return false, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("download failed: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), ".fetch-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return false, fmt.Errorf("download failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return false, err
	}
	return true, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	url, output := args[0], args[1]
	force, _ := cmd.Flags().GetBool("force")
	timeout, _ := cmd.Flags().GetDuration("fetch-timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	start := time.Now()
	fetched, err := fetch(ctx, http.DefaultClient, url, output, force)
	if err != nil {
		return err
	}
	if !fetched {
		fmt.Fprintf(cmd.OutOrStdout(), "%s exists, skipping\n", output)
		return nil
	}
	bridge.Logger().Info("fetched", zap.String("url", url), zap.Duration("elapsed", time.Since(start)))
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", output)
	return nil
}
