// Package render turns unit batches into markdown and appends them to the
// day's report file. Batches are written in the order the workers finished;
// fragment order within a batch is preserved.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skim/internal/core"
)

// DailySink appends report bodies to the dated file under Dir.
type DailySink struct {
	Dir string
}

// Append writes content to today's report file.
func (s DailySink) Append(content string) (string, error) {
	return AppendReport(content, s.Dir)
}

// RenderFragment formats one fragment as a markdown block: heading, link
// line, summary line, and an image line when the item carries one.
func RenderFragment(f core.Fragment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", f.Title)
	fmt.Fprintf(&b, "- **Link**: [%s](%s)\n", f.Link, f.Link)
	fmt.Fprintf(&b, "- **Summary**: %s\n", f.Summary)
	if f.Image != "" {
		fmt.Fprintf(&b, "- ![image](%s)\n", f.Image)
	}
	b.WriteString("\n")
	return b.String()
}

// RenderBatches concatenates all unit batches into one report body. The
// batch slice is taken as-is: completion order across units, input order
// within each.
func RenderBatches(batches []core.UnitBatch) string {
	var b strings.Builder
	for _, batch := range batches {
		for _, fragment := range batch.Fragments {
			b.WriteString(RenderFragment(fragment))
		}
	}
	return b.String()
}

// ReportPath returns the report file path for the given day.
func ReportPath(reportsDir string, day time.Time) string {
	return filepath.Join(reportsDir, day.Format("2006-01-02")+".md")
}

// AppendReport appends content to today's report file, creating the
// directory and file as needed. Reports are append-only: running twice on
// the same day extends the same file.
func AppendReport(content, reportsDir string) (string, error) {
	if reportsDir == "" {
		reportsDir = "reports"
	}

	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory %s: %w", reportsDir, err)
	}

	path := ReportPath(reportsDir, time.Now())
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open report file %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		return "", fmt.Errorf("failed to write report file %s: %w", path, err)
	}

	return path, nil
}
