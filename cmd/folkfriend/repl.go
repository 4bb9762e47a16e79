package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/hwellmann/folkfriend/bridge"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive query shell",
	Long: `Start an interactive shell that sends each line to the engine.

Commands:
  name <query>          search by tune name
  tx <contour>          search by melodic contour
  abc <contour>         render a contour as ABC notation
  load <file>           load a tune index
  version               print the engine version
  help                  show this list

Features:
  - Command history (up/down arrows)
  - History search (Ctrl+R)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.folkfriend_history)")
	replCmd.Flags().IntP("limit", "n", 10, "Maximum number of results per query")
	rootCmd.AddCommand(replCmd)
}

const replHelp = `name <query> | tx <contour> | abc <contour> | load <file> | version | exit`

var errQuit = errors.New("quit")

// evalLine runs one REPL command against p and writes its output to w.
func evalLine(ctx context.Context, p *bridge.Proxy, line string, limit int, w io.Writer) error {
	verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "":
		return nil
	case "exit", "quit":
		return errQuit
	case "help", "?":
		fmt.Fprintln(w, replHelp)
		return nil
	case "version":
		v, err := p.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, v)
		return nil
	case "load":
		if arg == "" {
			return errors.New("usage: load <file>")
		}
		if err := loadIndexFile(ctx, p, arg); err != nil {
			return err
		}
		fmt.Fprintln(w, dimStyle.Render("index loaded"))
		return nil
	case "name":
		if arg == "" {
			return errors.New("usage: name <query>")
		}
		rs, err := p.RunNameQuery(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprint(w, renderResults(rs, limit))
		return nil
	case "tx", "transcription":
		if arg == "" {
			return errors.New("usage: tx <contour>")
		}
		rs, err := p.RunTranscriptionQuery(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprint(w, renderResults(rs, limit))
		return nil
	case "abc":
		if arg == "" {
			return errors.New("usage: abc <contour>")
		}
		abc, err := p.ContourToAbc(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, strings.TrimRight(abc, "\n"))
		return nil
	default:
		return fmt.Errorf("unknown command %q (try 'help')", verb)
	}
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	limit, _ := cmd.Flags().GetInt("limit")

	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".folkfriend_history")
	}

	p, err := connect(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	eval := func(line string) bool {
		ctx, cancel := callContext(cmd)
		defer cancel()
		err := evalLine(ctx, p, line, limit, out)
		if errors.Is(err, errQuit) {
			return false
		}
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), errStyle.Render("Error: "+err.Error()))
		}
		return true
	}

	// Piped input: evaluate line by line without a line editor.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if !eval(scanner.Text()) {
				break
			}
		}
		return scanner.Err()
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "folk> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), titleStyle.Render("folkfriend")+dimStyle.Render(" (type 'help' for commands, Ctrl+D to exit)"))

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if !eval(line) {
			return nil
		}
	}
}
