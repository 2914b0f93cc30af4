// Package report writes screening results for downstream consumption.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Results are stamped in Beijing time (UTC+8), matching the exchange's
// reporting convention.
var beijing = time.FixedZone("CST", 8*60*60)

// Filename returns the CSV filename for a run started at the given time.
func Filename(now time.Time) string {
	return fmt.Sprintf("screened_symbols_%d.csv", now.Unix())
}

// BeijingTime formats t in Beijing time.
func BeijingTime(t time.Time) string {
	return t.In(beijing).Format("2006-01-02 15:04:05")
}

// WriteCSV writes the matched symbols with the screening timestamp to path.
// The parent directory is created if needed.
func WriteCSV(path string, symbols []string, screenedAt time.Time) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	rows := [][]string{{"symbol", "beijing_time"}}
	stamp := BeijingTime(screenedAt)
	for _, sym := range symbols {
		rows = append(rows, []string{sym, stamp})
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("writing csv: %w", err)
	}
	return f.Close()
}
