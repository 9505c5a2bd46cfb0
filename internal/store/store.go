// Package store defines the narrow interfaces through which the pipeline
// core consumes its external collaborators, plus the PostgreSQL/Redis
// implementations used in production.
package store

import (
	"context"
	"time"

	"applypilot/pipeline-service/internal/model"
)

// JobStore is the read-only view of normalized job postings.
type JobStore interface {
	// ListActiveJobs returns active postings fetched since the given time.
	ListActiveJobs(ctx context.Context, since time.Time) ([]model.JobPosting, error)
	// GetJob returns one posting by id.
	GetJob(ctx context.Context, jobID string) (*model.JobPosting, error)
}

// ProfileStore is the read-only view of candidate profiles and their
// supporting material.
type ProfileStore interface {
	GetActiveCandidates(ctx context.Context) ([]model.CandidateProfile, error)
	GetCandidate(ctx context.Context, candidateID string) (*model.CandidateProfile, error)
	// GetPrimaryDocumentArtifact returns nil with no error when the
	// candidate has no document on file.
	GetPrimaryDocumentArtifact(ctx context.Context, candidateID string) (*model.DocumentArtifact, error)
}

// Notifier delivers candidate-facing events. Fire-and-forget: failures are
// logged by implementations and must never propagate.
type Notifier interface {
	Notify(ctx context.Context, candidateID, event string, payload map[string]string)
}

// FeatureGate exposes the billing-driven limits consulted before claiming
// further entries.
type FeatureGate interface {
	ApplicationCapToday(ctx context.Context, candidateID string) (int, error)
}

// SubmissionCounter tracks how many applications were submitted per
// candidate in the current period.
type SubmissionCounter interface {
	SubmissionsToday(ctx context.Context, candidateID string) (int, error)
	RecordSubmission(ctx context.Context, candidateID string) error
}
