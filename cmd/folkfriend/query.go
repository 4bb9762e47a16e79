package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

var nameCmd = &cobra.Command{
	Use:   "name <query>",
	Short: "Search the index by tune name",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNameQuery,
}

var transcriptionCmd = &cobra.Command{
	Use:     "transcription <contour>",
	Aliases: []string{"tx"},
	Short:   "Search the index by melodic contour",
	Long: `Search the index by melodic contour.

A contour is a string of pitch characters: a-z and A-Z stand for MIDI notes
48 to 99, and repeated characters are held notes.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscriptionQuery,
}

var abcCmd = &cobra.Command{
	Use:   "abc <contour>",
	Short: "Render a contour as ABC notation",
	Args:  cobra.ExactArgs(1),
	RunE:  runContourToABC,
}

func init() {
	nameCmd.Flags().IntP("limit", "n", 10, "Maximum number of results")
	transcriptionCmd.Flags().IntP("limit", "n", 10, "Maximum number of results")
	rootCmd.AddCommand(versionCmd, nameCmd, transcriptionCmd, abcCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	p, err := connect(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := callContext(cmd)
	defer cancel()

	v, err := p.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runNameQuery(cmd *cobra.Command, args []string) error {
	if err := requireIndex(cmd); err != nil {
		return err
	}
	p, err := connect(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := callContext(cmd)
	defer cancel()

	rs, err := p.RunNameQuery(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	fmt.Fprint(cmd.OutOrStdout(), renderResults(rs, limit))
	return nil
}

func runTranscriptionQuery(cmd *cobra.Command, args []string) error {
	if err := requireIndex(cmd); err != nil {
		return err
	}
	p, err := connect(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := callContext(cmd)
	defer cancel()

	rs, err := p.RunTranscriptionQuery(ctx, args[0])
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	fmt.Fprint(cmd.OutOrStdout(), renderResults(rs, limit))
	return nil
}

func runContourToABC(cmd *cobra.Command, args []string) error {
	p, err := connect(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := callContext(cmd)
	defer cancel()

	abc, err := p.ContourToAbc(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(abc, "\n"))
	return nil
}
