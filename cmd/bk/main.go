package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bk-go/internal/app"
	"bk-go/internal/config"
	"bk-go/internal/database"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	jobsPath     string
	logPath      string
	quiet        bool
	settingsPath string
)

// loadSettings reads the settings file named by --settings, or the default
// location, falling back to defaults when it does not exist.
func loadSettings() (*config.Settings, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	s, err := config.LoadSettings(paths.SettingsFile(settingsPath), paths.Base)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return s, nil
}

// newApp reads the settings and the job file and creates a BKApp.
// The caller must defer app.Close().
func newApp(cmd *cobra.Command) (*app.BKApp, error) {
	if jobsPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}

	logFile := s.LogFile
	if cmd.Flags().Changed("log") || logFile == "" {
		logFile = logPath
	}

	a, err := app.NewBKApp(s, app.Options{
		JobsPath: jobsPath,
		Log: app.LogOptions{
			File:       logFile,
			MaxSizeMB:  s.LogMaxSizeMB,
			MaxBackups: s.LogMaxBackups,
			Quiet:      quiet,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "bk",
	Short: "Scheduled layered backups",
	Long: "bk runs the jobs of the job file on their cron schedules until interrupted.\n" +
		"Each run copies what changed into a new part of the target's current package.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx)
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run [JOB]",
	Short: "Run every job, or the named job, once",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			return a.RunAll()
		}
		rec, err := a.RunJob(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  copied %d  skipped %d  failed %d  %s\n",
			rec.Job, rec.Status, rec.Copied, rec.Skipped, rec.Failed, humanize.IBytes(uint64(rec.Bytes)))
		return nil
	},
}

// validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the job file without running anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jobsPath == "" {
			return fmt.Errorf("--config is required")
		}
		names, invalid, err := app.CheckJobs(jobsPath)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Printf("ok       %s\n", name)
		}
		for _, problem := range invalid {
			fmt.Printf("invalid  %v\n", problem)
		}
		if len(invalid) > 0 {
			return fmt.Errorf("%d problem(s) in %s", len(invalid), jobsPath)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := loadSettings()
		if err != nil {
			return err
		}
		h, err := database.NewHistoryFromConfig(s.History)
		if err != nil {
			return fmt.Errorf("opening run history: %w", err)
		}
		defer h.Close()

		runs, err := h.RecentRuns(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			fmt.Printf("%s  %-15s  %-12s  %-8s  %5d copied  %9s  %s  %s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Job,
				r.Method,
				r.Status,
				r.Copied,
				humanize.IBytes(uint64(r.Bytes)),
				r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond),
				r.Part,
			)
			if r.Error != "" {
				fmt.Printf("    error: %s\n", r.Error)
			}
		}
		return nil
	},
}

// settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage settings",
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		path := paths.SettingsFile(settingsPath)

		if err := config.Init(path, config.NewSettings(paths.Base)); err != nil {
			return fmt.Errorf("failed to initialize settings: %w", err)
		}

		fmt.Printf("Settings initialized at %s\n", path)
		fmt.Printf("Base Dir: %s\n", paths.Base)
		return nil
	},
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "View settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}

		fmt.Printf("Log File:     %s\n", s.LogFile)
		fmt.Printf("Log Rotation: %d MB, %d backups\n", s.LogMaxSizeMB, s.LogMaxBackups)
		fmt.Printf("History:      %s\n", s.History.Type)
		if s.History.Type == "sqlite" {
			fmt.Printf("History Dir:  %s\n", s.History.DataDir)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&jobsPath, "config", "c", "", "Job file (JSON, comments allowed)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", config.DefaultLogFile, "Log file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "No console output")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default $BK_SETTINGS_PATH or ~/.config/bk.toml)")

	// settings subcommands
	settingsCmd.AddCommand(settingsInitCmd)
	settingsCmd.AddCommand(settingsListCmd)

	// root commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(settingsCmd)
}
