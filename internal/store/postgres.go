package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"applypilot/pipeline-service/internal/model"
)

// PostgresJobStore reads normalized postings from the job_postings table
// maintained by the ingestion collaborators.
type PostgresJobStore struct {
	pool *pgxpool.Pool
}

// NewPostgresJobStore returns a JobStore backed by the shared pool.
func NewPostgresJobStore(pool *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{pool: pool}
}

// ListActiveJobs returns active postings fetched since the given time.
func (s *PostgresJobStore) ListActiveJobs(ctx context.Context, since time.Time) ([]model.JobPosting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, version, title, employer, location, remote,
		        salary_min, salary_max, salary_currency, work_type,
		        required_skills, industry, source, description,
		        submission_hint, fetched_at
		 FROM job_postings
		 WHERE is_active = true AND fetched_at >= $1
		 ORDER BY fetched_at DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query job_postings: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobPosting
	for rows.Next() {
		var j model.JobPosting
		var salaryMin, salaryMax *int
		var currency, industry *string
		if err := rows.Scan(
			&j.ID, &j.Version, &j.Title, &j.Employer, &j.Location, &j.Remote,
			&salaryMin, &salaryMax, &currency, &j.WorkType,
			&j.RequiredSkills, &industry, &j.Source, &j.Description,
			&j.SubmissionHint, &j.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job posting: %w", err)
		}
		if salaryMin != nil {
			j.Salary.Min = *salaryMin
		}
		if salaryMax != nil {
			j.Salary.Max = *salaryMax
		}
		if currency != nil {
			j.Salary.Currency = *currency
		}
		if industry != nil {
			j.Industry = *industry
		}
		j.Active = true
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// GetJob returns one posting by id.
func (s *PostgresJobStore) GetJob(ctx context.Context, jobID string) (*model.JobPosting, error) {
	var j model.JobPosting
	var salaryMin, salaryMax *int
	var currency, industry *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, version, title, employer, location, remote,
		        salary_min, salary_max, salary_currency, work_type,
		        required_skills, industry, source, description,
		        submission_hint, fetched_at, is_active
		 FROM job_postings
		 WHERE id = $1`,
		jobID,
	).Scan(
		&j.ID, &j.Version, &j.Title, &j.Employer, &j.Location, &j.Remote,
		&salaryMin, &salaryMax, &currency, &j.WorkType,
		&j.RequiredSkills, &industry, &j.Source, &j.Description,
		&j.SubmissionHint, &j.FetchedAt, &j.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("query job posting %s: %w", jobID, err)
	}
	if salaryMin != nil {
		j.Salary.Min = *salaryMin
	}
	if salaryMax != nil {
		j.Salary.Max = *salaryMax
	}
	if currency != nil {
		j.Salary.Currency = *currency
	}
	if industry != nil {
		j.Industry = *industry
	}
	return &j, nil
}

// PostgresProfileStore reads candidate profiles owned by the profile and
// settings collaborators. Read-only from the core's perspective.
type PostgresProfileStore struct {
	pool *pgxpool.Pool
}

// NewPostgresProfileStore returns a ProfileStore backed by the shared pool.
func NewPostgresProfileStore(pool *pgxpool.Pool) *PostgresProfileStore {
	return &PostgresProfileStore{pool: pool}
}

const candidateColumns = `
	id, full_name, email, phone, city, linkedin_url, desired_titles,
	salary_min, salary_max, salary_currency, preferred_locations,
	remote_preference, work_types, relocation_willing, years_experience,
	education_level, industries, skills, excluded_employers,
	work_authorization, sensitivity, approval_mode, approval_delay_minutes,
	daily_cap`

// GetActiveCandidates returns all candidates with automation enabled.
func (s *PostgresProfileStore) GetActiveCandidates(ctx context.Context) ([]model.CandidateProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidate_profiles WHERE is_active = true`,
	)
	if err != nil {
		return nil, fmt.Errorf("query candidate_profiles: %w", err)
	}
	defer rows.Close()

	var candidates []model.CandidateProfile
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

// GetCandidate returns one profile by id.
func (s *PostgresProfileStore) GetCandidate(ctx context.Context, candidateID string) (*model.CandidateProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidate_profiles WHERE id = $1`,
		candidateID,
	)
	return scanCandidate(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*model.CandidateProfile, error) {
	var c model.CandidateProfile
	var phone, city, linkedin, currency, education *string
	var salaryMin, salaryMax, delayMinutes, dailyCap *int
	var auth, sensitivity, approval string
	if err := row.Scan(
		&c.ID, &c.FullName, &c.Email, &phone, &city, &linkedin, &c.DesiredTitles,
		&salaryMin, &salaryMax, &currency, &c.PreferredLocations,
		&c.RemotePreference, &c.WorkTypes, &c.RelocationWilling, &c.YearsExperience,
		&education, &c.Industries, &c.Skills, &c.ExcludedEmployers,
		&auth, &sensitivity, &approval, &delayMinutes,
		&dailyCap,
	); err != nil {
		return nil, fmt.Errorf("scan candidate profile: %w", err)
	}
	if phone != nil {
		c.Phone = *phone
	}
	if city != nil {
		c.City = *city
	}
	if linkedin != nil {
		c.LinkedInURL = *linkedin
	}
	if salaryMin != nil {
		c.Salary.Min = *salaryMin
	}
	if salaryMax != nil {
		c.Salary.Max = *salaryMax
	}
	if currency != nil {
		c.Salary.Currency = *currency
	}
	if education != nil {
		c.EducationLevel = *education
	}
	if delayMinutes != nil {
		c.ApprovalDelay = time.Duration(*delayMinutes) * time.Minute
	}
	if dailyCap != nil {
		c.DailyCap = *dailyCap
	}
	c.WorkAuthorization = model.WorkAuthorization(auth)
	c.Sensitivity = model.MatchSensitivity(sensitivity)
	c.Approval = model.ApprovalMode(approval)
	return &c, nil
}

// GetPrimaryDocumentArtifact returns the candidate's newest document, or
// nil when none is on file.
func (s *PostgresProfileStore) GetPrimaryDocumentArtifact(ctx context.Context, candidateID string) (*model.DocumentArtifact, error) {
	var a model.DocumentArtifact
	err := s.pool.QueryRow(ctx,
		`SELECT candidate_id, file_name, file_path, content_type
		 FROM candidate_documents
		 WHERE candidate_id = $1 AND is_primary = true
		 ORDER BY created_at DESC
		 LIMIT 1`,
		candidateID,
	).Scan(&a.CandidateID, &a.FileName, &a.Path, &a.ContentType)
	if errors.Is(err, pgx.ErrNoRows) {
		// Absence of a document is not an error: the dispatcher turns it
		// into a missing_prerequisite outcome.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query candidate document: %w", err)
	}
	return &a, nil
}
