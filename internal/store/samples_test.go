package store

import (
	"context"
	"errors"
	"testing"

	"sampletrack/internal/errs"
)

func TestUpsertSampleTreeRejectsNullRoot(t *testing.T) {
	// A JSON null element decodes to a typed-nil node; it must fail
	// validation, not panic in the flattener.
	s := &PostgresStore{}

	_, err := s.UpsertSampleTree(context.Background(), "svc", "p1", []*SampleUpsert{nil})
	var validation *errs.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpsertSampleTreeRejectsNullChild(t *testing.T) {
	s := &PostgresStore{}

	roots := []*SampleUpsert{
		{
			ExternalID: "EXT-1",
			Type:       "blood",
			Children:   []*SampleUpsert{nil},
		},
	}
	_, err := s.UpsertSampleTree(context.Background(), "svc", "p1", roots)
	var validation *errs.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
