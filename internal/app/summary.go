package app

import (
	"fmt"
	"io"
	"time"

	"idecrypt/internal/decrypt"
)

// FormatBytes renders n with a binary unit and one decimal: "512 B", "1.5 KB".
func FormatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n < kb:
		return fmt.Sprintf("%d B", n)
	case n < mb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	case n < gb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	default:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	}
}

// FormatDuration renders d as "Xm Ys", or "Ys" under a minute. Fractions of a
// second are dropped.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	minutes, secs := secs/60, secs%60
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// WriteSummary prints the end-of-run report. location is the output
// directory in output mode and the backup directory in place.
func WriteSummary(w io.Writer, rep *decrypt.Report, location string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== DECRYPTION COMPLETE ===")
	fmt.Fprintf(w, "Total files: %d\n", rep.Total)
	fmt.Fprintf(w, "Successfully processed: %d\n", rep.Processed)
	fmt.Fprintf(w, "Skipped (already exist or not encrypted): %d\n", rep.Skipped)
	fmt.Fprintf(w, "Errors: %d\n", rep.Errored)
	fmt.Fprintf(w, "Total data processed: %s\n", FormatBytes(rep.Bytes))
	fmt.Fprintf(w, "Time taken: %s\n", FormatDuration(rep.Duration))

	if rep.Mode == decrypt.ModeInPlace {
		fmt.Fprintln(w, "Mode: In-place replacement in backup directory")
		fmt.Fprintf(w, "Location: %s\n", location)
	} else {
		fmt.Fprintln(w, "Mode: Extract to separate directory")
		fmt.Fprintf(w, "Output directory: %s\n", location)
		fmt.Fprintln(w, "Structure: Preserved original backup format with decrypted files")
	}

	if rep.Cancelled {
		fmt.Fprintf(w, "Interrupted: %d of %d files completed\n", rep.Completed(), rep.Total)
	}
	if rep.Errored > 0 {
		fmt.Fprintf(w, "Warning: %d files had errors during processing\n", rep.Errored)
	}
}
