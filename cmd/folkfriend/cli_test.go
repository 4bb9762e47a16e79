package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hwellmann/folkfriend/engine"
	"github.com/spf13/cobra"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeIndex(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(path, []byte(testIndex), 0644); err != nil {
		t.Fatalf("failed to write index: %v", err)
	}
	return path
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"folkfriend",
		"--engine",
		"--index",
		"--subprocess",
		"FOLKFRIEND_INDEX",
		"name",
		"transcription",
		"abc",
		"repl",
		"serve",
		"tui",
		"fetch",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}

	if strings.Contains(output, "Serve the search engine on stdin") {
		t.Error("worker command should be hidden")
	}
}

func TestCLIReplHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "repl", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"--history", "--limit", "Command history", "name <query>"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("repl help output should contain %q", phrase)
		}
	}
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "serve", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"--port", "/query/name", "/query/transcription", "/index", "/abc", "/health"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("serve help output should contain %q", phrase)
		}
	}
}

func TestCLIInvalidLogLevel(t *testing.T) {
	_, err := executeCommand(rootCmd, "version", "--log-level", "loud")
	rootCmd.PersistentFlags().Set("log-level", "warn")
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("expected log level error, got %v", err)
	}
}

func TestCLIQueries(t *testing.T) {
	index := writeIndex(t)

	output, err := executeCommand(rootCmd, "version", "--index", index, "--log-level", "error")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(output, "native-") {
		t.Errorf("unexpected version output %q", output)
	}

	output, err = executeCommand(rootCmd, "name", "kesh", "--index", index)
	if err != nil {
		t.Fatalf("name: %v", err)
	}
	if !strings.Contains(output, "The Kesh") {
		t.Errorf("name output should contain the tune, got %q", output)
	}

	output, err = executeCommand(rootCmd, "tx", "zzzyyy", "--index", index)
	if err != nil {
		t.Fatalf("transcription: %v", err)
	}
	if !strings.Contains(output, "Drowsy Maggie") {
		t.Errorf("transcription output should contain the tune, got %q", output)
	}

	output, err = executeCommand(rootCmd, "abc", "mmo", "--index", index)
	if err != nil {
		t.Fatalf("abc: %v", err)
	}
	if !strings.Contains(output, "C2 D |") {
		t.Errorf("unexpected abc output %q", output)
	}
}

func TestCLIQueryRequiresIndex(t *testing.T) {
	_, err := executeCommand(rootCmd, "name", "kesh", "--index", "")
	if err == nil || !strings.Contains(err.Error(), "no index") {
		t.Errorf("expected missing index error, got %v", err)
	}
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"16mb", engine.MemoryLimit16MB},
		{"256MB", engine.MemoryLimit256MB},
		{"1gb", engine.MemoryLimit1GB},
		{"", 0},
		{"lots", 0},
	}
	for _, tt := range tests {
		if got := parseMemoryLimit(tt.in); got != tt.want {
			t.Errorf("parseMemoryLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWorkerArgsForwardEngineFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(rootCmd.PersistentFlags())
	cmd.Flags().Set("engine", "/opt/ff.wasm")
	cmd.Flags().Set("no-cache", "true")
	cmd.Flags().Set("log-level", "debug")
	cmd.Flags().Set("memory", "")

	got := strings.Join(workerArgs(cmd), " ")
	want := "worker --engine /opt/ff.wasm --log-level debug --no-cache"
	if got != want {
		t.Errorf("workerArgs = %q, want %q", got, want)
	}

	// Restore shared flag state for other tests.
	cmd.Flags().Set("engine", "")
	cmd.Flags().Set("no-cache", "false")
	cmd.Flags().Set("log-level", "warn")
}

func TestEvalLine(t *testing.T) {
	p := newTestProxy(t, false)
	ctx := context.Background()
	index := writeIndex(t)

	tests := []struct {
		line    string
		want    string
		wantErr bool
	}{
		{"help", "name <query>", false},
		{"version", "native-", false},
		{"abc mmo", "C2 D |", false},
		{"load " + index, "index loaded", false},
		{"name maggie", "Drowsy Maggie", false},
		{"tx abcdef", "The Kesh", false},
		{"name", "", true},
		{"dance", "", true},
		{"   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var out bytes.Buffer
			err := evalLine(ctx, p, tt.line, 5, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("evalLine(%q) error = %v", tt.line, err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("evalLine(%q) output %q should contain %q", tt.line, out.String(), tt.want)
			}
		})
	}

	if err := evalLine(ctx, p, "exit", 5, &bytes.Buffer{}); !errors.Is(err, errQuit) {
		t.Errorf("exit should quit, got %v", err)
	}
}

func TestRenderResults(t *testing.T) {
	rs := engine.ResultSet{
		{SettingID: "101", TuneID: "1", DisplayName: "The Kesh", Score: 0.75},
		{TuneID: "2", Score: 0.5},
		{TuneID: "3", Score: 0.25},
	}

	out := renderResults(rs, 2)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out)
	}
	if !strings.Contains(lines[0], "0.750") || !strings.Contains(lines[0], "setting 101") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "tune 2") {
		t.Errorf("unexpected second line %q", lines[1])
	}

	if !strings.Contains(renderResults(nil, 10), "no matches") {
		t.Error("empty result set should say so")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, testIndex)
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "index.json")
	ctx := context.Background()

	fetched, err := fetch(ctx, srv.Client(), srv.URL+"/index.json", out, false)
	if err != nil || !fetched {
		t.Fatalf("first fetch: fetched=%v err=%v", fetched, err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != testIndex {
		t.Errorf("unexpected content %q", data)
	}

	fetched, err = fetch(ctx, srv.Client(), srv.URL+"/index.json", out, false)
	if err != nil || fetched {
		t.Errorf("second fetch should skip: fetched=%v err=%v", fetched, err)
	}

	if _, err := fetch(ctx, srv.Client(), srv.URL+"/missing", filepath.Join(dir, "x"), true); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := os.Stat(filepath.Join(dir, "x")); !os.IsNotExist(err) {
		t.Error("failed download left a file behind")
	}
}
