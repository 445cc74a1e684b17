package store

import "time"

type Project struct {
	ID        string
	Name      string
	Meta      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ProjectMember struct {
	ProjectID string
	Member    string
	Role      string
}

type Participant struct {
	ID          string
	ProjectID   string
	ExternalID  string
	ReportedSex string
	Meta        map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Sample struct {
	ID            string
	ProjectID     string
	ParticipantID *string
	ExternalID    string
	Type          string
	Active        bool
	Meta          map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Assay struct {
	ID        string
	SampleID  string
	Type      string
	Meta      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SequencingGroup is an immutable-by-membership grouping of assays of one
// type/technology/platform under one sample. Membership changes never mutate
// a group: the current row is archived and a successor row is created with
// DerivedFromID pointing back at it. At most one non-archived group exists
// per (SampleID, Type, Technology, Platform) key.
type SequencingGroup struct {
	ID            string
	SampleID      string
	Type          string
	Technology    string
	Platform      string
	Meta          map[string]any
	Archived      bool
	DerivedFromID *string
	AssayIDs      []string
	CreatedAt     time.Time
}

type Analysis struct {
	ID                 string
	ProjectID          string
	Type               string
	Status             string
	OutputObject       string
	SequencingGroupIDs []string
	Meta               map[string]any
	CreatedAt          time.Time
	CompletedAt        *time.Time
}

type Cohort struct {
	ID                 string
	ProjectID          string
	Name               string
	Description        string
	SequencingGroupIDs []string
	CreatedAt          time.Time
}

// APIKey is a long-lived credential for pipeline callers. Hash is the bcrypt
// hash of the key secret; the plaintext is never stored.
type APIKey struct {
	ID         string
	Member     string
	Name       string
	Hash       string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// AuditEntry records one mutating operation. Rows are append-only; nothing in
// this schema is ever deleted, only archived.
type AuditEntry struct {
	ID          string
	Actor       string
	Action      string
	SubjectKind string
	SubjectID   string
	Details     map[string]any
	CreatedAt   time.Time
}
