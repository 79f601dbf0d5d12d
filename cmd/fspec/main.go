// Package main provides the CLI entry point for fspec.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fspec-dev/fspec/internal/config"
	"github.com/fspec-dev/fspec/internal/lockedfile"
	"github.com/fspec-dev/fspec/internal/stringutil"
	"github.com/fspec-dev/fspec/internal/workunit"
)

// Output format constants.
const (
	outputJSON = "json"
	outputYAML = "yaml"
	outputText = "text"
)

var (
	// Global flags
	flagConfigPath  string
	flagSpecDir     string
	flagProject     string
	flagLockTimeout string
	flagDebugLocks  bool

	// Init flags
	initDemo  int
	initForce bool

	// Add flags
	addTitle string
	addTags  string

	// List flags
	listStatus string
	listOutput string

	// Show flags
	showOutput string

	// Estimate flags
	estimatePoints int

	// Config show flags
	configShowOutput string

	// Store instance (lazy initialized from config)
	store *workunit.Store

	// Global config (loaded once, used by all commands)
	cfg *config.Config
)

// Exit codes. Commands use these semantically:
//   - exitValidation: invalid input, unknown ID, bad ID format
//   - exitConflict: ID already exists, or a disallowed status transition
//   - exitWrite: file system write failure, lock timeout
const (
	exitValidation = 1
	exitConflict   = 2
	exitWrite      = 3
)

// ExitError is an error that carries a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitErr creates an ExitError with the given code and message.
func exitErr(code int, msg string) error {
	return &ExitError{Code: code, Message: msg}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitError *ExitError
		if errors.As(err, &exitError) {
			os.Exit(exitError.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fspec",
	Short: "fspec - spec-driven work unit tracker",
	Long: `fspec manages a project's work units as plain JSON files inside a
spec directory. All state lives in version-controllable files; concurrent
fspec invocations coordinate through lock files next to the state they edit.

Run 'fspec init' in a repository to create the spec directory, then use
add, list, show, start, block and done to track work.`,
}

// initConfig loads the configuration with proper precedence.
// Called lazily by commands that need it.
func initConfig() error {
	if cfg != nil {
		return nil
	}

	var err error
	cfg, err = config.Load(config.LoadOptions{
		ExplicitPath: flagConfigPath,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Apply CLI flag overrides (highest priority)
	cfg.ApplyCLIOverrides(config.CLIOverrides{
		SpecDir:        flagSpecDir,
		Project:        flagProject,
		AcquireTimeout: flagLockTimeout,
		DebugLocks:     flagDebugLocks,
	})

	return cfg.Validate()
}

// initStore creates the work unit store backed by a locked file manager.
func initStore() error {
	if store != nil {
		return nil
	}

	if err := initConfig(); err != nil {
		return err
	}

	opts := []lockedfile.Option{
		lockedfile.WithAcquireTimeout(cfg.AcquireTimeoutDuration()),
		lockedfile.WithStaleThreshold(cfg.StaleThresholdDuration()),
	}
	if cfg.Locks.Debug {
		opts = append(opts, lockedfile.WithMetricsLogger(
			slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	store = workunit.NewStore(lockedfile.NewManager(opts...), cfg.SpecDir)
	return nil
}

// mapStoreErr converts store errors to ExitErrors with the right exit code.
// Errors it does not recognize are returned unchanged.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}

	var parseErr *lockedfile.ParseError
	switch {
	case errors.Is(err, workunit.ErrInvalidID):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "ID must match: WU-[a-z0-9-]{1,64}")
		fmt.Fprintln(os.Stderr, "Example: WU-auth-flow")
		return exitErr(exitValidation, "invalid ID format")
	case errors.Is(err, workunit.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitErr(exitValidation, "work unit not found")
	case errors.Is(err, workunit.ErrIDExists):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitErr(exitConflict, "work unit ID already exists")
	case errors.Is(err, workunit.ErrBadTransition):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitErr(exitConflict, "invalid status transition")
	case errors.Is(err, lockedfile.ErrLockTimeout):
		fmt.Fprintln(os.Stderr, "Error: state file locked by another process")
		return exitErr(exitWrite, "lock timeout")
	case errors.Is(err, lockedfile.ErrLockCompromised):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitErr(exitWrite, "lock compromised")
	case errors.As(err, &parseErr):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Fix or remove the corrupted file and retry")
		return exitErr(exitValidation, "corrupted state file")
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitErr(exitWrite, "operation failed")
	}
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the spec directory and project files",
	Long: `Create the spec directory with project.json and work-units.json.
Running init in an already-initialized directory is a no-op unless --force
is given.

Use --demo to seed the project with generated work units, useful for
trying out the CLI or populating a demo environment.`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initStore()
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		if initForce {
			if err := os.RemoveAll(cfg.SpecDir); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to remove %s: %v\n", cfg.SpecDir, err)
				return exitErr(exitWrite, "failed to reset spec directory")
			}
		}

		if err := os.MkdirAll(cfg.SpecDir, 0o750); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create %s: %v\n", cfg.SpecDir, err)
			return exitErr(exitWrite, "failed to create spec directory")
		}

		if err := store.Init(cfg.Project); err != nil {
			return mapStoreErr(err)
		}

		if initDemo > 0 {
			if err := store.Seed(initDemo); err != nil {
				return mapStoreErr(err)
			}
			fmt.Printf("✓ Initialized %s with %d demo work units\n", cfg.SpecDir, initDemo)
			return nil
		}

		fmt.Printf("✓ Initialized %s (project: %s)\n", cfg.SpecDir, cfg.Project)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add a new work unit",
	Long: `Add a work unit to the project. The ID must start with WU- and
contain only lowercase letters, numbers, and hyphens.

Examples:
  fspec add WU-auth-flow --title "Authentication flow"
  fspec add WU-billing-v2 --title "Billing V2" --tags "billing,payments"`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initStore()
	},
	RunE: func(_ *cobra.Command, args []string) error {
		id := args[0]
		if addTitle == "" {
			fmt.Fprintln(os.Stderr, "Error: --title is required")
			return exitErr(exitValidation, "--title is required")
		}

		var tags []string
		if addTags != "" {
			for _, tag := range strings.Split(addTags, ",") {
				tag = strings.TrimSpace(tag)
				if tag != "" {
					tags = append(tags, tag)
				}
			}
		}

		if err := store.Add(id, addTitle, tags); err != nil {
			return mapStoreErr(err)
		}

		fmt.Printf("✓ Added %s\n", id)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List work units",
	Args:  cobra.NoArgs,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initStore()
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		status := workunit.Status(listStatus)
		if listStatus != "" && !workunit.ValidStatus(status) {
			fmt.Fprintf(os.Stderr, "Error: unknown status: %s\n", listStatus)
			return exitErr(exitValidation, "unknown status")
		}

		units, err := store.List(status)
		if err != nil {
			return mapStoreErr(err)
		}

		switch listOutput {
		case outputJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(units)
		case outputYAML:
			return yaml.NewEncoder(os.Stdout).Encode(units)
		default:
			if len(units) == 0 {
				fmt.Println("No work units")
				return nil
			}
			for _, u := range units {
				fmt.Printf("%s  %s  %s\n",
					stringutil.PadRight(u.ID, 24),
					stringutil.PadRight(string(u.Status), 12),
					stringutil.Truncate(u.Title, 60))
			}
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single work unit",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initStore()
	},
	RunE: func(_ *cobra.Command, args []string) error {
		u, err := store.Get(args[0])
		if err != nil {
			return mapStoreErr(err)
		}

		switch showOutput {
		case outputJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(u)
		case outputYAML:
			return yaml.NewEncoder(os.Stdout).Encode(u)
		default:
			fmt.Printf("ID:       %s\n", u.ID)
			fmt.Printf("Title:    %s\n", u.Title)
			fmt.Printf("Status:   %s\n", u.Status)
			if len(u.Tags) > 0 {
				fmt.Printf("Tags:     %s\n", strings.Join(u.Tags, ", "))
			}
			if u.Estimate > 0 {
				fmt.Printf("Estimate: %d\n", u.Estimate)
			}
			fmt.Printf("Created:  %s\n", u.CreatedAt.Format("2006-01-02 15:04"))
			fmt.Printf("Updated:  %s\n", u.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// moveCmd builds a status-transition command. start, block, and done are the
// same operation with a different target status.
func moveCmd(use, short string, to workunit.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return initStore()
		},
		RunE: func(_ *cobra.Command, args []string) error {
			if err := store.Move(args[0], to); err != nil {
				return mapStoreErr(err)
			}
			fmt.Printf("✓ %s → %s\n", args[0], to)
			return nil
		},
	}
}

var (
	startCmd   = moveCmd("start", "Move a work unit to in-progress", workunit.StatusInProgress)
	blockCmd   = moveCmd("block", "Mark a work unit as blocked", workunit.StatusBlocked)
	doneCmd    = moveCmd("done", "Mark a work unit as done", workunit.StatusDone)
	backlogCmd = moveCmd("backlog", "Move a work unit back to the backlog", workunit.StatusBacklog)
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <id>",
	Short: "Set the estimate for a work unit",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initStore()
	},
	RunE: func(_ *cobra.Command, args []string) error {
		if estimatePoints < 0 {
			fmt.Fprintln(os.Stderr, "Error: --points must be non-negative")
			return exitErr(exitValidation, "--points must be non-negative")
		}
		if err := store.SetEstimate(args[0], estimatePoints); err != nil {
			return mapStoreErr(err)
		}
		fmt.Printf("✓ %s estimate set to %d\n", args[0], estimatePoints)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show project summary",
	Args:  cobra.NoArgs,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initStore()
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		p, err := store.Project()
		if err != nil {
			return mapStoreErr(err)
		}

		units, err := store.List("")
		if err != nil {
			return mapStoreErr(err)
		}

		counts := make(map[workunit.Status]int)
		for _, u := range units {
			counts[u.Status]++
		}

		fmt.Printf("Project:  %s\n", p.Name)
		fmt.Printf("Created:  %s\n", p.CreatedAt.Format("2006-01-02"))
		fmt.Printf("Units:    %d added, %d done\n", p.UnitsAdded, p.UnitsDone)
		fmt.Println()
		for _, s := range []workunit.Status{
			workunit.StatusBacklog, workunit.StatusInProgress,
			workunit.StatusBlocked, workunit.StatusDone,
		} {
			fmt.Printf("  %s %d\n", stringutil.PadRight(string(s)+":", 13), counts[s])
		}
		return nil
	},
}

// configCmd is the parent command for configuration operations.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage fspec configuration",
	Long: `The config command group manages fspec configuration.

Configuration is loaded from multiple sources with the following precedence (highest to lowest):
1. CLI flags (--dir, --project, --lock-timeout, --debug-locks)
2. Environment variables (FSPEC_DIR, FSPEC_LOCK_TIMEOUT, etc.)
3. Project config (.fspec.yaml in repo root)
4. Global config (~/.config/fspec/config.yaml)
5. Built-in defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration",
	Long: `Display the fully resolved configuration after applying all sources.

This shows the effective configuration that would be used by fspec commands,
including defaults, config files, environment variables, and CLI flags.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		switch configShowOutput {
		case outputJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		default:
			// YAML output (default)
			fmt.Print(cfg.String())

			// Show discovered config file paths
			global, project := config.DiscoveredPaths()
			fmt.Println("\n# Configuration sources:")
			if global != "" {
				fmt.Printf("# - Global: %s\n", global)
			} else {
				fmt.Println("# - Global: (not found)")
			}
			if project != "" {
				fmt.Printf("# - Project: %s\n", project)
			} else {
				fmt.Println("# - Project: (not found)")
			}
			if flagConfigPath != "" {
				fmt.Printf("# - Explicit: %s\n", flagConfigPath)
			}
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Custom config file path")
	rootCmd.PersistentFlags().StringVar(&flagSpecDir, "dir", "", "Spec directory (default: spec)")
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "Project name")
	rootCmd.PersistentFlags().StringVar(&flagLockTimeout, "lock-timeout", "", "Lock acquisition timeout (e.g. 5s)")
	rootCmd.PersistentFlags().BoolVar(&flagDebugLocks, "debug-locks", false, "Log lock wait and hold times to stderr")

	// Init flags
	initCmd.Flags().IntVar(&initDemo, "demo", 0, "Seed N generated work units")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Remove an existing spec directory first")

	// Add flags
	addCmd.Flags().StringVar(&addTitle, "title", "", "Work unit title (required)")
	addCmd.Flags().StringVar(&addTags, "tags", "", "Comma-separated tags")

	// List flags
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Filter by status (backlog, in-progress, blocked, done)")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "text", "Output format (text, json, yaml)")

	// Show flags
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "text", "Output format (text, json, yaml)")

	// Estimate flags
	estimateCmd.Flags().IntVar(&estimatePoints, "points", 0, "Estimate in points")

	// Config show flags
	configShowCmd.Flags().StringVarP(&configShowOutput, "output", "o", "yaml", "Output format (yaml, json)")

	// Command tree
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(backlogCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}
