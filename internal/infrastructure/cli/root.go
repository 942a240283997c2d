// Package cli wires the cobra command tree: generation, validation,
// execution, and the maintenance subcommands for cache, history, and
// diagnostics.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/doeshing/cmdai-go/internal/app"
	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/services"
	"github.com/doeshing/cmdai-go/internal/version"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
}

// NewRootCmd builds the dependency graph and wires the cobra root command.
// The bare root doubles as gen so `cmdai "prompt"` works without a
// subcommand.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, error) {
	container, err := app.BuildContainer(ctx, opts.Verbose, NewPrompter(nil, nil))
	if err != nil {
		return nil, err
	}

	root := &cobra.Command{
		Use:   `cmdai "prompt"`,
		Short: "Turn natural language into vetted shell commands",
		Long: `cmdai generates shell commands from natural language, classifies their
risk against a pattern rule table, and executes them in a supervised
process group only after the safety tier allows it.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootFlags := &genFlags{}
	bindGenerationFlags(root, rootFlags, true)
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runGeneration(cmd, args, container, rootFlags, false)
	}

	root.AddCommand(
		newGenCommand(container),
		newRunCommand(container),
		newCheckCommand(container),
		newCacheCommand(container),
		newHistoryCommand(container),
		newDoctorCommand(container),
		newVersionCommand(),
	)
	return root, nil
}

// genFlags is the flag set shared by the root, gen, and run commands.
type genFlags struct {
	model    string
	backend  string
	execute  bool
	copyText bool
	dryRun   bool
	override bool
	noRefine bool
	output   string
	timeout  time.Duration
}

func bindGenerationFlags(cmd *cobra.Command, flags *genFlags, withExecute bool) {
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Override the backend's model")
	cmd.Flags().StringVarP(&flags.backend, "backend", "b", "", "Pin one backend instead of walking the fallback chain")
	if withExecute {
		cmd.Flags().BoolVarP(&flags.execute, "execute", "x", false, "Execute the generated command after safety checks")
	}
	cmd.Flags().BoolVarP(&flags.copyText, "copy", "c", false, "Copy the generated command to the clipboard")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Preview what would run without spawning anything")
	cmd.Flags().BoolVar(&flags.override, "unsafe-override", false, "Override a critical block (config must also allow it)")
	cmd.Flags().BoolVar(&flags.noRefine, "no-refine", false, "Skip safety refinement rounds")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output format: text, json or yaml")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Execution timeout (default from config)")
}

func newGenCommand(container *app.Container) *cobra.Command {
	flags := &genFlags{}
	cmd := &cobra.Command{
		Use:   `gen "prompt"`,
		Short: "Generate a command without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGeneration(cmd, args, container, flags, false)
		},
	}
	bindGenerationFlags(cmd, flags, true)
	return cmd
}

func newRunCommand(container *app.Container) *cobra.Command {
	flags := &genFlags{}
	cmd := &cobra.Command{
		Use:   `run "prompt"`,
		Short: "Generate a command and execute it through the safety gate",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGeneration(cmd, args, container, flags, true)
		},
	}
	bindGenerationFlags(cmd, flags, false)
	return cmd
}

// runGeneration drives one prompt through the generator service and renders
// whatever came back, refusals and timeouts included. The service error is
// returned after rendering so the process exit code reflects the outcome.
func runGeneration(cmd *cobra.Command, args []string, container *app.Container, flags *genFlags, forceExecute bool) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return cmd.Help()
	}

	format, err := parseFormat(flags.output, container.Cfg.Preferences.Output)
	if err != nil {
		return err
	}
	renderer := NewRenderer(cmd.OutOrStdout(), format)

	req := domain.GenerationRequest{
		Prompt:          prompt,
		BackendOverride: flags.backend,
		ModelOverride:   flags.model,
		Refine:          container.Cfg.Generation.Refinement.Enabled && !flags.noRefine,
	}

	spin := newProgressSpinner()
	spin.Start()
	defer spin.Stop()

	opts := services.RunOptions{
		Execute:     forceExecute || flags.execute,
		DryRun:      flags.dryRun,
		Override:    flags.override,
		Timeout:     flags.timeout,
		OnGenerated: func(domain.GeneratedCommand) { spin.Stop() },
	}

	outcome, runErr := container.Generator.Run(cmd.Context(), req, opts)
	spin.Stop()
	if runErr != nil && outcome.Command.Command == "" {
		return runErr
	}

	if err := renderer.Outcome(outcome); err != nil {
		return err
	}
	copyToClipboard(cmd, container, flags, outcome.Command.Command)
	return runErr
}

func copyToClipboard(cmd *cobra.Command, container *app.Container, flags *genFlags, command string) {
	if !flags.copyText || command == "" {
		return
	}
	clip := NewClipboard()
	if err := clip.Copy(command); err != nil {
		container.Log.Warn("clipboard copy failed", map[string]interface{}{"error": err.Error()})
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "(copied to clipboard)")
}

// newProgressSpinner returns a spinner when stderr is a terminal, nil
// otherwise. Nil spinners no-op.
func newProgressSpinner() *Spinner {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return NewSpinner(os.Stderr, "thinking...")
}

func newCheckCommand(container *app.Container) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   `check "command"`,
		Short: "Assess a literal command without any generation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			risk, err := container.Generator.Check(cmd.Context(), command)
			if err != nil {
				return err
			}
			format, err := parseFormat(output, container.Cfg.Preferences.Output)
			if err != nil {
				return err
			}
			return NewRenderer(cmd.OutOrStdout(), format).Check(command, risk)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json or yaml")
	return cmd
}

func newHistoryCommand(container *app.Container) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [search term]",
		Short: "List or search past generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				limit = container.Cfg.HistoryLimit()
			}
			var (
				records []domain.HistoryRecord
				err     error
			)
			if len(args) > 0 {
				records, err = container.History.Search(cmd.Context(), strings.Join(args, " "), limit)
			} else {
				records, err = container.History.Recent(cmd.Context(), limit)
			}
			if errors.Is(err, domain.ErrHistoryDisabled) {
				fmt.Fprintln(cmd.OutOrStdout(), "History is disabled in config.")
				return nil
			}
			if err != nil {
				return err
			}
			return NewRenderer(cmd.OutOrStdout(), domain.OutputText).History(records)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max records to show (default from config)")
	return cmd
}

func newCacheCommand(container *app.Container) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the model artifact cache",
	}

	cacheCmd.AddCommand(
		newCacheListCommand(container),
		newCacheClearCommand(container),
		newCacheRemoveCommand(container),
		newCacheStatsCommand(container),
	)

	return cacheCmd
}

func newCacheListCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached model artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := container.Models.List(cmd.Context())
			if err != nil {
				return err
			}
			return NewRenderer(cmd.OutOrStdout(), domain.OutputText).CachedModels(models)
		},
	}
}

func newCacheClearCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every unpinned model artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.Models.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}
}

func newCacheRemoveCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <model-id>",
		Short: "Remove one cached model artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.Models.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", args[0])
			return nil
		},
	}
}

func newCacheStatsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage against the size bound",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := container.Models.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return NewRenderer(cmd.OutOrStdout(), domain.OutputText).CacheStats(stats)
		},
	}
}

func newDoctorCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose config, backends, cache, and probes",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := container.Doctor.Run(cmd.Context())
			if err != nil {
				return err
			}
			return NewRenderer(cmd.OutOrStdout(), domain.OutputText).Health(report)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show cmdai version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cmdai version %s\n", version.Version)
			if version.Commit != "" {
				fmt.Fprintf(out, "Commit: %s\n", version.Commit)
			}
			if version.BuildDate != "" {
				fmt.Fprintf(out, "Built: %s\n", version.BuildDate)
			}
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			return nil
		},
	}
}

// parseFormat resolves the output format from the flag then the config
// default. A bad flag value errors; a bad config value falls back to text.
func parseFormat(flag, configured string) (domain.OutputFormat, error) {
	raw := flag
	if raw == "" {
		raw = configured
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text":
		return domain.OutputText, nil
	case "json":
		return domain.OutputJSON, nil
	case "yaml", "yml":
		return domain.OutputYAML, nil
	default:
		if flag == "" {
			return domain.OutputText, nil
		}
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", raw)
	}
}
