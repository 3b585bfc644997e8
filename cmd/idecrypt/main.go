package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"idecrypt/internal/app"
	"idecrypt/internal/config"
	"idecrypt/internal/decrypt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when there is none.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(opts app.Options) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "idecrypt",
	Short:        "Decrypt encrypted iTunes-style device backups",
	SilenceUsage: true,
}

// decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt a backup into a directory or in place",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		verbose, _ := flags.GetBool("verbose")
		logPath, _ := flags.GetString("log")

		var req app.DecryptRequest
		req.BackupDir, _ = flags.GetString("backup")
		req.OutputDir, _ = flags.GetString("output")
		req.Replace, _ = flags.GetBool("replace")
		req.Password, _ = flags.GetString("password")
		req.Force, _ = flags.GetBool("force")
		req.Jobs, _ = flags.GetInt("jobs")
		req.Domain, _ = flags.GetString("domain")
		req.Path, _ = flags.GetString("path")
		req.MetricsFile, _ = flags.GetString("metrics-file")

		a, err := newApp(app.Options{
			Stdout:   cmd.OutOrStdout(),
			Stderr:   cmd.ErrOrStderr(),
			Verbose:  verbose,
			LogPath:  logPath,
			Prompter: newPrompter(),
		})
		if err != nil {
			return err
		}
		defer a.Close()

		_, err = a.Decrypt(cmd.Context(), req)
		switch {
		case errors.Is(err, decrypt.ErrCancelled):
			fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled by user.")
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		}
		return err
	},
}

// info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device and backup information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backup, _ := cmd.Flags().GetString("backup")

		a, err := newApp(app.Options{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.Info(backup)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Backup Info:")
		fmt.Fprintf(out, "  Device:    %s\n", info.DeviceName)
		fmt.Fprintf(out, "  Product:   %s (%s)\n", info.ProductType, info.ProductVersion)
		if !info.Date.IsZero() {
			fmt.Fprintf(out, "  Date:      %s\n", info.Date.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(out, "  Encrypted: %t\n", info.Encrypted)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View decryption run history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(app.Options{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No decryption runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				duration = app.FormatDuration(r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Second))
			}
			fmt.Fprintf(out, "#%d  %s  %-9s  %-8s  %d/%d processed, %d skipped, %d errors  %-6s  %s -> %s\n",
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Mode,
				r.Processed,
				r.Total,
				r.Skipped,
				r.Errored,
				duration,
				r.BackupPath,
				r.Target,
			)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(out, "Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration from %s:\n\n", path)
		fmt.Fprintf(out, "Base Dir:      %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:       %s\n", cfg.LogDir)
		fmt.Fprintf(out, "Workers:       %d\n", cfg.Workers)
		fmt.Fprintf(out, "Encryption:    %s\n", cfg.Encryption.Type)
		fmt.Fprintf(out, "Database:      %s\n", cfg.Database.Type)
		if cfg.Database.DataDir != "" {
			fmt.Fprintf(out, "Data Dir:      %s\n", cfg.Database.DataDir)
		}
		if cfg.Staging.TempDir != "" {
			fmt.Fprintf(out, "Staging Dir:   %s\n", cfg.Staging.TempDir)
		}
		if cfg.Metrics.TextfilePath != "" {
			fmt.Fprintf(out, "Metrics File:  %s\n", cfg.Metrics.TextfilePath)
		}
		return nil
	},
}

func init() {
	// decrypt flags
	f := decryptCmd.Flags()
	f.StringP("backup", "b", "", "Path to the backup directory")
	f.StringP("output", "o", "", "Decrypt into this directory, preserving the backup layout")
	f.BoolP("replace", "r", false, "Decrypt files in place inside the backup directory")
	f.StringP("password", "p", "", "Backup password (prompted for when omitted)")
	f.StringP("log", "l", "", "Write the log to this file, overwriting it")
	f.BoolP("verbose", "v", false, "Show per-file progress on the console")
	f.BoolP("force", "f", false, "Overwrite existing output files and skip the in-place confirmation")
	f.IntP("jobs", "j", 0, "Number of files decrypted concurrently (default from config)")
	f.String("domain", decrypt.MatchAll, "Only decrypt files whose domain matches this SQL LIKE pattern")
	f.String("path", decrypt.MatchAll, "Only decrypt files whose relative path matches this SQL LIKE pattern")
	f.String("metrics-file", "", "Write Prometheus textfile metrics to this path")
	decryptCmd.MarkFlagRequired("backup")
	decryptCmd.MarkFlagsMutuallyExclusive("output", "replace")
	decryptCmd.MarkFlagsOneRequired("output", "replace")

	infoCmd.Flags().StringP("backup", "b", "", "Path to the backup directory")
	infoCmd.MarkFlagRequired("backup")

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}
