package decrypt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProgressInterval is the number of completed records between progress snapshots.
const ProgressInterval = 100

// Options configure a single run.
type Options struct {
	Mode Mode

	// OutputRoot is the output-tree destination. Must be empty in place.
	OutputRoot string

	// Force overwrites existing output-tree files instead of skipping them.
	Force bool

	// Password unlocks an encrypted archive. When empty, PasswordFunc is
	// consulted, and only if the archive is locked.
	Password     string
	PasswordFunc func() (string, error)

	// DomainPattern and PathPattern narrow the catalog search. Empty means MatchAll.
	DomainPattern string
	PathPattern   string

	// Workers is the number of records extracted concurrently. Values below
	// two process records sequentially in catalog order.
	Workers int
}

// Validate checks the options for internal consistency.
func (o Options) Validate() error {
	switch o.Mode {
	case ModeOutputTree:
		if o.OutputRoot == "" {
			return fmt.Errorf("%w: output mode requires an output directory", ErrSetup)
		}
	case ModeInPlace:
		if o.OutputRoot != "" {
			return fmt.Errorf("%w: cannot use an output directory with in-place replacement", ErrSetup)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrSetup, o.Mode)
	}
	return nil
}

// Report is the final snapshot of a run.
type Report struct {
	Mode      Mode
	Target    string
	Total     int
	Processed int64
	Skipped   int64
	Errored   int64
	Bytes     int64
	StartedAt time.Time
	Duration  time.Duration
	Cancelled bool
}

// Completed returns the number of records that reached a terminal disposition.
func (r *Report) Completed() int64 {
	return r.Processed + r.Skipped + r.Errored
}

// Runner drives a Session through unlock, catalog decryption, search and
// per-record materialization.
type Runner struct {
	fsys     Filesystem
	resolver *Resolver
	replacer *Replacer
	logger   Logger
	clock    Clock
}

// NewRunner creates a Runner that writes through fsys using replacer.
func NewRunner(fsys Filesystem, replacer *Replacer, logger Logger, clock Clock) *Runner {
	return &Runner{
		fsys:     fsys,
		resolver: NewResolver(fsys),
		replacer: replacer,
		logger:   logger,
		clock:    clock,
	}
}

// Run executes one decryption run against session. Fatal failures return an
// error and a nil report. Per-record failures are counted in the report and
// never abort the run. When ctx is cancelled between records the partial
// report is returned together with ctx's error. The session is always cleaned
// up before Run returns.
func (r *Runner) Run(ctx context.Context, session Session, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	report, err := r.run(ctx, session, opts)

	if cerr := session.CleanUp(); cerr != nil {
		r.logger.Warn("failed to clean up backup session", "error", cerr)
	}

	if report != nil {
		r.logger.Info("run finished",
			"mode", report.Mode.String(),
			"total", report.Total,
			"processed", report.Processed,
			"skipped", report.Skipped,
			"errors", report.Errored,
			"bytes", report.Bytes,
			"duration", report.Duration.String(),
			"cancelled", report.Cancelled,
		)
	}

	return report, err
}

func (r *Runner) run(ctx context.Context, session Session, opts Options) (*Report, error) {
	if err := r.unlock(session, opts); err != nil {
		return nil, err
	}

	r.logger.Info("decrypting file catalog")
	if err := session.DecryptCatalog(); err != nil {
		if errors.Is(err, ErrCatalog) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}

	domain, path := orMatchAll(opts.DomainPattern), orMatchAll(opts.PathPattern)
	r.logger.Info("querying backup catalog", "domain", domain, "path", path)
	records, err := session.SearchFiles(domain, path)
	if err != nil {
		return nil, fmt.Errorf("%w: searching files: %w", ErrCatalog, err)
	}
	r.logger.Info("found files to process", "count", len(records))

	if opts.Mode == ModeOutputTree {
		if exp, ok := session.(ManifestExporter); ok {
			if err := exp.ExportManifest(opts.OutputRoot); err != nil {
				r.logger.Warn("failed to copy manifest files", "error", err)
			}
		}
	}

	startedAt := r.clock.Now()
	stats := NewStats(startedAt)
	cancelled := r.process(ctx, records, opts, stats)
	snap := stats.Snapshot(r.clock.Now())

	report := &Report{
		Mode:      opts.Mode,
		Target:    opts.OutputRoot,
		Total:     len(records),
		Processed: snap.Processed,
		Skipped:   snap.Skipped,
		Errored:   snap.Errored,
		Bytes:     snap.Bytes,
		StartedAt: startedAt,
		Duration:  snap.Elapsed,
		Cancelled: cancelled,
	}

	if cancelled {
		r.logger.Warn("run interrupted, stopping after in-flight files", "completed", snap.Completed(), "total", len(records))
		return report, ctx.Err()
	}
	return report, nil
}

func (r *Runner) unlock(session Session, opts Options) error {
	if !session.IsLocked() {
		r.logger.Debug("backup is not locked")
		return nil
	}

	password := opts.Password
	if password == "" && opts.PasswordFunc != nil {
		pw, err := opts.PasswordFunc()
		if err != nil {
			return fmt.Errorf("%w: reading password: %w", ErrSetup, err)
		}
		password = pw
	}

	r.logger.Info("unlocking encrypted backup")
	if err := session.Unlock(password); err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			return err
		}
		return fmt.Errorf("unlocking backup: %w", err)
	}
	r.logger.Info("backup unlocked successfully")
	return nil
}

// process handles every record and reports whether ctx stopped it early.
func (r *Runner) process(ctx context.Context, records []Record, opts Options, stats *Stats) bool {
	total := len(records)

	if opts.Workers < 2 {
		for _, rec := range records {
			if ctx.Err() != nil {
				return true
			}
			r.handle(rec, opts, stats, total)
		}
		return false
	}

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	cancelled := false
	for _, rec := range records {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		g.Go(func() error {
			r.handle(rec, opts, stats, total)
			return nil
		})
	}
	_ = g.Wait()
	return cancelled
}

// handle brings one record to exactly one terminal disposition.
func (r *Runner) handle(rec Record, opts Options, stats *Stats, total int) {
	var completed int64

	disp, dest, err := r.dispose(rec, opts)
	switch {
	case err != nil:
		completed = r.fail(rec, err, stats)
	case disp.Skip():
		completed = stats.AddSkipped()
		r.logger.Debug("skipped", "reason", disp.String(), "id", rec.ID(), "domain", rec.Domain(), "path", rec.RelativePath())
	default:
		strategy, err := r.replacer.Replace(rec, dest)
		if err != nil {
			completed = r.fail(rec, err, stats)
			break
		}
		completed = stats.AddProcessed(rec.Size())
		r.logger.Debug("materialized",
			"id", rec.ID(),
			"domain", rec.Domain(),
			"path", rec.RelativePath(),
			"size", rec.Size(),
			"encrypted", rec.IsEncrypted(),
			"staging", strategy,
		)
	}

	if completed%ProgressInterval == 0 {
		r.progress(stats, total)
	}
}

func (r *Runner) fail(rec Record, err error, stats *Stats) int64 {
	recErr := newRecordError(rec, err)
	r.logger.Error("error processing file",
		"id", recErr.ID,
		"domain", recErr.Domain,
		"path", recErr.Path,
		"error", recErr.Err,
	)
	return stats.AddErrored()
}

// dispose classifies rec and resolves its destination when it needs extraction.
func (r *Runner) dispose(rec Record, opts Options) (Disposition, string, error) {
	if opts.Mode == ModeInPlace {
		disp := Classify(rec, ModeInPlace, opts.Force, false)
		if disp.Skip() {
			return disp, "", nil
		}
		dest, err := r.resolver.InPlaceTarget(rec)
		return disp, dest, err
	}

	if rec.Type() == FileTypeDirectory {
		return Directory, "", nil
	}

	dest, exists, err := r.resolver.OutputTarget(rec, opts.OutputRoot)
	if err != nil {
		return NeedsExtraction, "", err
	}

	disp := Classify(rec, ModeOutputTree, opts.Force, exists)
	if disp.Skip() {
		return disp, dest, nil
	}

	if err := r.fsys.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return disp, "", fmt.Errorf("%w: creating shard directory: %w", ErrExtraction, err)
	}
	return disp, dest, nil
}

func (r *Runner) progress(stats *Stats, total int) {
	snap := stats.Snapshot(r.clock.Now())
	percent := 100.0
	if total > 0 {
		percent = float64(snap.Completed()) * 100 / float64(total)
	}
	r.logger.Info("progress",
		"completed", snap.Completed(),
		"total", total,
		"percent", fmt.Sprintf("%.1f", percent),
		"processed", snap.Processed,
		"skipped", snap.Skipped,
		"errors", snap.Errored,
	)
}

func orMatchAll(pattern string) string {
	if pattern == "" {
		return MatchAll
	}
	return pattern
}
