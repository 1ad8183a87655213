package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"repopilot/internal/agent"
	"repopilot/internal/cache"
	"repopilot/internal/config"
	"repopilot/internal/llm"
	"repopilot/internal/report"
	"repopilot/internal/tools"
)

const defaultTask = "Identify high-risk areas, potential bugs, and security concerns in this codebase."

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "repopilot",
		Short:         "Repository analysis agent with validated, evidence-backed output",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		asJSON     bool
		outFile    string
		quiet      bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "run <repo> [task]",
		Short: "Analyze a repository and print the validated report",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := args[0]
			task := defaultTask
			if len(args) > 1 {
				task = args[1]
			}

			info, err := os.Stat(repo)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("repo path is not a directory: %s", repo)
			}

			_ = godotenv.Load()

			lim, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := log.New(os.Stderr, "", log.LstdFlags)
			if quiet {
				logger = log.New(io.Discard, "", 0)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			gemini, err := llm.NewGeminiClient(ctx, lim.Model)
			if err != nil {
				return fmt.Errorf("init model client: %w", err)
			}
			client := llm.Wrap(gemini,
				llm.Retry(3, 500*time.Millisecond),
				llm.WithLogging(logger),
			)
			defer client.Close()

			toolset, err := cache.New(&tools.Local{}, lim.ReadCacheSize)
			if err != nil {
				return fmt.Errorf("init read cache: %w", err)
			}

			start := time.Now()
			state, err := agent.New(client, toolset, lim, logger).Run(ctx, task, repo)
			if err != nil {
				return err
			}
			result := report.FromState(state, time.Since(start))
			return emitResult(cmd.OutOrStdout(), result, asJSON, outFile)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON instead of the report")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "also save the JSON result to FILE")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress logging")
	cmd.Flags().StringVar(&configPath, "config", "repopilot.yaml", "path to the limits config file")
	return cmd
}

// emitResult saves the JSON result to outFile when requested, then prints to
// stdout regardless: raw JSON with --json, the formatted report otherwise.
func emitResult(stdout io.Writer, result report.Result, asJSON bool, outFile string) error {
	var encoded []byte
	if outFile != "" || asJSON {
		b, err := result.JSON()
		if err != nil {
			return err
		}
		encoded = append(b, '\n')
	}

	if outFile != "" {
		if err := os.WriteFile(outFile, encoded, 0o644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
	}

	if asJSON {
		_, err := stdout.Write(encoded)
		return err
	}
	report.Render(stdout, result)
	return nil
}
