package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"idecrypt/internal/config"
	"idecrypt/internal/database"
	"idecrypt/internal/decrypt"
	"idecrypt/internal/encryption"
	"idecrypt/internal/fs"
	"idecrypt/internal/itunes"
	"idecrypt/internal/metrics"
	"idecrypt/internal/staging"
)

const (
	passwordPrompt = "Enter backup password: "
	confirmPrompt  = "Continue? (y/N): "
)

// Prompter reads operator input. ReadPassword must not echo.
type Prompter interface {
	ReadPassword(prompt string) (string, error)
	ReadLine(prompt string) (string, error)
}

// Options configure the process-level collaborators of an App.
type Options struct {
	// Stdout receives the final summary; Stderr receives console logging.
	Stdout io.Writer
	Stderr io.Writer

	Verbose bool
	// LogPath replaces <log_dir>/idecrypt.log and is truncated on open.
	LogPath string

	// Prompter is nil when no terminal is attached.
	Prompter Prompter
	// Clock defaults to decrypt.RealClock.
	Clock decrypt.Clock
}

// DecryptRequest is one decrypt invocation as given on the command line.
type DecryptRequest struct {
	BackupDir   string
	OutputDir   string
	Replace     bool
	Password    string
	Force       bool
	Jobs        int
	Domain      string
	Path        string
	MetricsFile string
}

// ErrNoHistory means the run-history database could not be opened.
var ErrNoHistory = errors.New("run history is unavailable")

// App is the application layer between the CLI and the decryption core.
// It constructs all dependencies from config, validates requests, records
// run history and prints the summary. The caller must call Close when done.
type App struct {
	cfg      *config.Config
	db       *database.SQLiteDatabase
	keybag   itunes.Keybag
	fsys     *fs.OSFilesystem
	logger   *slog.Logger
	log      decrypt.Logger
	logFile  *os.File
	runID    string
	clock    decrypt.Clock
	prompter Prompter
	stdout   io.Writer
}

// New creates a fully wired App from the given config.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = decrypt.RealClock{}
	}

	keybag, err := encryption.NewKeybagFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating keybag: %w", err)
	}

	runID := decrypt.UUIDGenerator{}.New()
	logger, logFile, err := newLogger(opts.Stderr, opts.Verbose, cfg.LogDir, opts.LogPath, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	log := &slogAdapter{l: logger}
	db, err := openHistory(cfg.Database)
	if err != nil {
		log.Warn("run history unavailable, continuing without it", "error", err)
	}

	return &App{
		cfg:      cfg,
		db:       db,
		keybag:   keybag,
		fsys:     fs.NewOSFilesystem(),
		logger:   logger,
		log:      log,
		logFile:  logFile,
		runID:    runID,
		clock:    opts.Clock,
		prompter: opts.Prompter,
		stdout:   opts.Stdout,
	}, nil
}

// openHistory opens the run-history database and checks its schema.
func openHistory(cfg config.DatabaseConfig) (*database.SQLiteDatabase, error) {
	db, err := database.NewDatabaseFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}
	return db, nil
}

// RunID identifies this process's run in logs and history.
func (a *App) RunID() string {
	return a.runID
}

// Decrypt validates req, decrypts the backup and prints the summary. The
// report is nil when the run failed before any record was processed.
// Declining the in-place confirmation returns decrypt.ErrCancelled.
func (a *App) Decrypt(ctx context.Context, req DecryptRequest) (*decrypt.Report, error) {
	a.log.Info("starting backup decryption", "backup", req.BackupDir, "run", a.runID)

	opts, err := a.prepare(req)
	if err != nil {
		return nil, err
	}
	backupDir, _ := filepath.Abs(req.BackupDir)

	a.log.Info("loading backup", "path", backupDir)
	session, err := itunes.Open(backupDir, a.keybag, a.fsys, a.log)
	if err != nil {
		return nil, err
	}
	a.logBackupInfo(session.Info())

	var run *database.Run
	if a.db != nil {
		run = newRun(a.runID, backupDir, opts, a.clock.Now())
		if err := a.db.StartRun(run); err != nil {
			a.log.Warn("could not record run history", "error", err)
			run = nil
		}
	}

	report, runErr := a.newRunner().Run(ctx, session, opts)

	if run != nil {
		finishRun(run, report, runErr, a.clock.Now())
		if err := a.db.FinishRun(run); err != nil {
			a.log.Warn("could not record run history", "error", err)
		}
	}

	if report != nil {
		a.exportMetrics(report, req.MetricsFile)
		location := opts.OutputRoot
		if opts.Mode == decrypt.ModeInPlace {
			location = backupDir
		}
		WriteSummary(a.stdout, report, location)
	}

	return report, runErr
}

// prepare turns req into core options. Nothing is written except the output
// directory, and only once every other check has passed.
func (a *App) prepare(req DecryptRequest) (decrypt.Options, error) {
	var opts decrypt.Options

	if req.BackupDir == "" {
		return opts, fmt.Errorf("%w: backup path is required", decrypt.ErrSetup)
	}
	if info, err := os.Stat(req.BackupDir); err != nil || !info.IsDir() {
		return opts, fmt.Errorf("%w: backup directory does not exist: %s", decrypt.ErrSetup, req.BackupDir)
	}

	switch {
	case req.OutputDir != "" && req.Replace:
		return opts, fmt.Errorf("%w: cannot use both --output and --replace", decrypt.ErrSetup)
	case req.OutputDir == "" && !req.Replace:
		return opts, fmt.Errorf("%w: either --output or --replace is required", decrypt.ErrSetup)
	}

	opts = decrypt.Options{
		Force:         req.Force,
		Password:      req.Password,
		DomainPattern: req.Domain,
		PathPattern:   req.Path,
		Workers:       a.cfg.Workers,
	}
	if req.Jobs > 0 {
		opts.Workers = req.Jobs
	}
	if a.prompter != nil {
		opts.PasswordFunc = func() (string, error) {
			return a.prompter.ReadPassword(passwordPrompt)
		}
	}

	if req.Replace {
		opts.Mode = decrypt.ModeInPlace
		a.log.Info("replace mode: files will be decrypted in place in the backup directory")
		if !req.Force && !a.confirm() {
			a.log.Info("operation cancelled by user")
			return opts, decrypt.ErrCancelled
		}
		return opts, opts.Validate()
	}

	root, err := filepath.Abs(req.OutputDir)
	if err != nil {
		return opts, fmt.Errorf("%w: resolving output directory: %v", decrypt.ErrSetup, err)
	}
	opts.Mode = decrypt.ModeOutputTree
	opts.OutputRoot = root

	if err := a.prepareOutputDir(root, req.Force); err != nil {
		return opts, err
	}
	return opts, opts.Validate()
}

func (a *App) prepareOutputDir(root string, force bool) error {
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(root, 0755); err != nil {
			return fmt.Errorf("%w: creating output directory: %v", decrypt.ErrSetup, err)
		}
		a.log.Info("created output directory", "path", root)
		return nil
	case err != nil:
		return fmt.Errorf("%w: checking output directory: %v", decrypt.ErrSetup, err)
	case !info.IsDir():
		return fmt.Errorf("%w: output path is not a directory: %s", decrypt.ErrSetup, root)
	}

	if force {
		return nil
	}
	empty, err := fs.IsDirEmpty(root)
	if err != nil {
		return fmt.Errorf("%w: reading output directory: %v", decrypt.ErrSetup, err)
	}
	if !empty {
		return fmt.Errorf("%w: output directory is not empty, use --force to overwrite existing files", decrypt.ErrSetup)
	}
	return nil
}

// confirm asks before the backup is modified. No terminal means no.
func (a *App) confirm() bool {
	a.log.Warn("this will modify the original backup files, use --force to skip this confirmation")
	if a.prompter == nil {
		return false
	}
	answer, err := a.prompter.ReadLine(confirmPrompt)
	if err != nil {
		a.log.Debug("reading confirmation failed", "error", err)
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y")
}

func (a *App) newRunner() *decrypt.Runner {
	stagers := staging.NewStagersFromConfig(a.cfg.Staging, a.fsys, decrypt.UUIDGenerator{}, a.log)
	replacer := decrypt.NewReplacer(a.fsys, a.log, stagers...)
	return decrypt.NewRunner(a.fsys, replacer, a.log, a.clock)
}

func (a *App) logBackupInfo(info itunes.Info) {
	date := ""
	if !info.Date.IsZero() {
		date = info.Date.Local().Format("2006-01-02 15:04:05")
	}
	a.log.Info("backup info",
		"device", info.DeviceName,
		"product", info.ProductType,
		"version", info.ProductVersion,
		"date", date,
		"encrypted", info.Encrypted,
	)
}

// exportMetrics writes the run's metrics when a textfile path is configured.
// path overrides the configured one.
func (a *App) exportMetrics(rep *decrypt.Report, path string) {
	if path == "" {
		path = a.cfg.Metrics.TextfilePath
	}
	if path == "" {
		return
	}

	m := metrics.NewRunMetrics()
	m.Observe(rep)
	if err := m.WriteTextfile(path); err != nil {
		a.log.Warn("could not write metrics", "path", path, "error", err)
		return
	}
	a.log.Debug("wrote metrics", "path", path)
}

// Info opens the backup in dir and returns its description.
func (a *App) Info(dir string) (itunes.Info, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return itunes.Info{}, fmt.Errorf("%w: backup directory does not exist: %s", decrypt.ErrSetup, dir)
	}
	session, err := itunes.Open(dir, a.keybag, a.fsys, a.log)
	if err != nil {
		return itunes.Info{}, err
	}
	defer session.CleanUp()
	return session.Info(), nil
}

// History returns the most recent decrypt runs, newest first.
func (a *App) History(limit int) ([]*database.Run, error) {
	if a.db == nil {
		return nil, ErrNoHistory
	}
	return a.db.ListRuns(limit)
}

// Close closes the database and the log file.
func (a *App) Close() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
