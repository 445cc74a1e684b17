package export

import (
	"context"
	"fmt"

	"sampletrack/internal/store"
)

// DataStore defines the data access needed to build a report.
type DataStore interface {
	GetProjectSummary(ctx context.Context, projectID string) (store.ProjectSummary, error)
	ActiveGroups(ctx context.Context, projectID string) ([]store.SequencingGroup, error)
}

// Service renders project reports.
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates a report in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	summary, err := s.store.GetProjectSummary(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project summary: %w", err)
	}

	groups, err := s.store.ActiveGroups(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list active groups: %w", err)
	}

	switch req.Format {
	case FormatCSV:
		return exportCSV(summary, groups)
	case FormatPDF:
		html, err := RenderSummaryHTML(summary, groups)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return exportPDF(html, summary.Project.Name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
