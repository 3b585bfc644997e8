package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"idecrypt/internal/database"
	"idecrypt/internal/decrypt"
)

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name   string
		report *decrypt.Report
		err    error
		want   string
	}{
		{name: "clean run", report: &decrypt.Report{Total: 3, Processed: 3}, want: database.StatusSuccess},
		{name: "record errors", report: &decrypt.Report{Total: 3, Processed: 2, Errored: 1}, want: database.StatusPartial},
		{name: "interrupted", report: &decrypt.Report{Total: 3, Processed: 1, Cancelled: true}, err: context.Canceled, want: database.StatusCancelled},
		{name: "declined", err: decrypt.ErrCancelled, want: database.StatusCancelled},
		{name: "bad password", err: decrypt.ErrInvalidCredential, want: database.StatusFailed},
		{name: "no report", want: database.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runStatus(tt.report, tt.err); got != tt.want {
				t.Errorf("runStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRunAndFinishRun(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("output mode targets output root", func(t *testing.T) {
		run := newRun("r1", "/backup", decrypt.Options{Mode: decrypt.ModeOutputTree, OutputRoot: "/out"}, start)
		if run.Mode != "output" || run.Target != "/out" || run.BackupPath != "/backup" {
			t.Errorf("newRun() = %+v", run)
		}
	})

	t.Run("in place targets backup", func(t *testing.T) {
		run := newRun("r2", "/backup", decrypt.Options{Mode: decrypt.ModeInPlace}, start)
		if run.Mode != "in-place" || run.Target != "/backup" {
			t.Errorf("newRun() = %+v", run)
		}
	})

	t.Run("finish copies counters and error", func(t *testing.T) {
		run := newRun("r3", "/backup", decrypt.Options{Mode: decrypt.ModeInPlace}, start)
		rep := &decrypt.Report{Total: 5, Processed: 3, Skipped: 1, Errored: 1, Bytes: 99}
		finishRun(run, rep, nil, start.Add(time.Minute))

		if !run.FinishedAt.Valid || !run.FinishedAt.Time.Equal(start.Add(time.Minute)) {
			t.Errorf("FinishedAt = %v", run.FinishedAt)
		}
		if run.Total != 5 || run.Processed != 3 || run.Skipped != 1 || run.Errored != 1 || run.Bytes != 99 {
			t.Errorf("counters = %+v", run)
		}
		if run.Status != database.StatusPartial || run.Message != "" {
			t.Errorf("status = %q message = %q", run.Status, run.Message)
		}

		failed := newRun("r4", "/backup", decrypt.Options{Mode: decrypt.ModeInPlace}, start)
		finishRun(failed, nil, errors.New("boom"), start)
		if failed.Status != database.StatusFailed || failed.Message != "boom" {
			t.Errorf("failed run = %+v", failed)
		}
	})
}
