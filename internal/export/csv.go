package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"sampletrack/internal/store"
)

// exportCSV writes the active group table as CSV. Used when no headless
// browser is available or the caller wants machine-readable output.
func exportCSV(summary store.ProjectSummary, groups []store.SequencingGroup) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"id", "sample_id", "type", "technology", "platform", "assay_count", "derived_from"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, g := range groups {
		derived := ""
		if g.DerivedFromID != nil {
			derived = *g.DerivedFromID
		}
		record := []string{g.ID, g.SampleID, g.Type, g.Technology, g.Platform, strconv.Itoa(len(g.AssayIDs)), derived}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(summary.Project.Name) + ".csv",
		MimeType: "text/csv",
	}, nil
}

// sanitizeFilename creates a safe filename from a project name.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		case r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "project"
	}
	return result
}
