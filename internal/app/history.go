package app

import (
	"database/sql"
	"errors"
	"time"

	"idecrypt/internal/database"
	"idecrypt/internal/decrypt"
)

// newRun creates the history entry for a decrypt run before it starts.
func newRun(runID, backupDir string, opts decrypt.Options, startedAt time.Time) *database.Run {
	target := opts.OutputRoot
	if opts.Mode == decrypt.ModeInPlace {
		target = backupDir
	}
	return &database.Run{
		RunID:      runID,
		BackupPath: backupDir,
		Mode:       opts.Mode.String(),
		Target:     target,
		StartedAt:  startedAt,
	}
}

// finishRun copies the outcome of a run onto its history entry.
func finishRun(run *database.Run, rep *decrypt.Report, runErr error, finishedAt time.Time) {
	run.FinishedAt = sql.NullTime{Time: finishedAt, Valid: true}
	run.Status = runStatus(rep, runErr)
	if rep != nil {
		run.Total = int64(rep.Total)
		run.Processed = rep.Processed
		run.Skipped = rep.Skipped
		run.Errored = rep.Errored
		run.Bytes = rep.Bytes
	}
	if runErr != nil {
		run.Message = runErr.Error()
	}
}

// runStatus is "cancelled" for an interrupted run, "failed" for a fatal error,
// "partial" when some records failed and "success" otherwise.
func runStatus(rep *decrypt.Report, runErr error) string {
	switch {
	case rep != nil && rep.Cancelled:
		return database.StatusCancelled
	case errors.Is(runErr, decrypt.ErrCancelled):
		return database.StatusCancelled
	case runErr != nil || rep == nil:
		return database.StatusFailed
	case rep.Errored > 0:
		return database.StatusPartial
	default:
		return database.StatusSuccess
	}
}
