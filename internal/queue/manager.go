// Package queue: Manager is the sole writer of entry state. Every state
// change is a conditional UPDATE keyed on the expected current state, so
// repeating a sweep or racing a claim is always safe.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/model"
	"applypilot/pipeline-service/internal/scoring"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when an entry is missing or does not belong to
// the candidate.
var ErrNotFound = errors.New("queue entry not found")

// ErrIllegalTransition is returned when the state machine rejects a
// requested transition.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("transition %s → %s is not allowed", e.From, e.To)
}

// ErrNothingClaimable is returned by ClaimNext when no approved entry is
// eligible right now.
var ErrNothingClaimable = errors.New("no claimable entry")

// ─── Manager ─────────────────────────────────────────────────────────────────

// Manager encapsulates all queue persistence and transition logic.
// It is transport-agnostic: used by the HTTP handler, the scoring sweep and
// the execution dispatcher.
type Manager struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	log    *zap.Logger
	gates  Gates
	ttl    time.Duration // entry time-to-live from creation
	staleA time.Duration // dispatching staleness threshold for crash recovery
}

// NewManager returns a configured Manager.
func NewManager(pool *pgxpool.Pool, rdb *redis.Client, log *zap.Logger, gates Gates, ttl, stale time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if stale <= 0 {
		stale = 30 * time.Minute
	}
	return &Manager{pool: pool, rdb: rdb, log: log, gates: gates, ttl: ttl, staleA: stale}
}

// Gates exposes the configured gate thresholds.
func (m *Manager) Gates() Gates { return m.gates }

const entryColumns = `
	id, candidate_id, job_id, job_version, score, breakdown, reasons,
	state, channel, reason, history_log, created_at, expires_at,
	eligible_at, updated_at`

// requeueGuardSQL is the quoted list of states where BlocksRequeue is true.
// It backs the Upsert insert guard and must stay in lockstep with the
// partial unique index on (candidate_id, job_id, job_version).
var requeueGuardSQL = func() string {
	all := []State{StatePending, StateApproved, StateDispatching,
		StateApplied, StateFailed, StateRejected, StateExpired}
	quoted := make([]string, 0, len(all))
	for _, s := range all {
		if BlocksRequeue(s) {
			quoted = append(quoted, "'"+string(s)+"'")
		}
	}
	return strings.Join(quoted, ", ")
}()

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var stateStr, channelStr string
	err := row.Scan(
		&e.ID, &e.CandidateID, &e.JobID, &e.JobVersion, &e.Score,
		&e.Breakdown, &e.Reasons, &stateStr, &channelStr, &e.Reason,
		&e.HistoryLog, &e.CreatedAt, &e.ExpiresAt, &e.EligibleAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.State = State(stateStr)
	e.Channel = model.ChannelKind(channelStr)
	return &e, nil
}

// historyJSON builds the JSONB array element appended on every transition.
func historyJSON(from, to State, note string) string {
	entry, _ := json.Marshal(map[string]string{
		"from": string(from),
		"to":   string(to),
		"note": note,
		"at":   time.Now().UTC().Format(time.RFC3339),
	})
	return fmt.Sprintf("[%s]", entry)
}

// ─── Insert / refresh ────────────────────────────────────────────────────────

// Upsert inserts a PENDING entry for the pair when the score clears the
// candidate's gate. Idempotent: if a non-terminal entry already exists for
// the same (candidate, job version) key, its score and reasons are refreshed
// in place and no duplicate is created. Keys whose entry reached APPLIED or
// REJECTED are never re-queued (see BlocksRequeue). Returns true when a new
// entry was inserted.
func (m *Manager) Upsert(ctx context.Context, c *model.CandidateProfile, j *model.JobPosting, res scoring.Result) (bool, error) {
	gate := m.gates.For(c.Sensitivity)
	if res.Total < gate {
		return false, nil
	}

	breakdown, err := json.Marshal(res.Breakdown)
	if err != nil {
		return false, fmt.Errorf("marshal breakdown: %w", err)
	}

	// Re-scoring an already-queued pair updates score/reasons in place.
	tag, err := m.pool.Exec(ctx,
		`UPDATE queue_entries
		 SET score = $1, breakdown = $2::jsonb, reasons = $3, updated_at = NOW()
		 WHERE candidate_id = $4 AND job_id = $5 AND job_version = $6
		   AND state IN ('PENDING', 'APPROVED')`,
		res.Total, string(breakdown), res.Reasons, c.ID, j.ID, j.Version,
	)
	if err != nil {
		return false, fmt.Errorf("refresh entry: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	// A rejected pair stays frozen for this job version and an applied
	// pair is never queued again: a second insert would mean a second
	// submission of the same application. The partial unique index on the
	// reserving states makes the insert safe under concurrent sweeps.
	var dueAt *time.Time
	switch c.Approval {
	case model.ApprovalAuto:
		now := time.Now().UTC()
		dueAt = &now
	case model.ApprovalDelayed:
		t := time.Now().UTC().Add(c.ApprovalDelay)
		dueAt = &t
	}

	tag, err = m.pool.Exec(ctx,
		`INSERT INTO queue_entries
		   (candidate_id, job_id, job_version, score, breakdown, reasons,
		    state, history_log, expires_at, eligible_at, approval_due_at)
		 SELECT $1, $2, $3, $4, $5::jsonb, $6, 'PENDING', '[]'::jsonb,
		        NOW() + $7::interval, NOW(), $8
		 WHERE NOT EXISTS (
		   SELECT 1 FROM queue_entries
		   WHERE candidate_id = $1 AND job_id = $2 AND job_version = $3
		     AND state IN (`+requeueGuardSQL+`)
		 )
		 ON CONFLICT DO NOTHING`,
		c.ID, j.ID, j.Version, res.Total, string(breakdown), res.Reasons,
		m.ttl.String(), dueAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	m.publish(ctx, "EVENT_ENTRY_QUEUED", map[string]string{
		"candidateId": c.ID,
		"jobId":       j.ID,
		"score":       fmt.Sprintf("%d", res.Total),
	})
	return true, nil
}

// ─── Candidate-driven transitions ────────────────────────────────────────────

// Approve moves a PENDING entry to APPROVED on explicit candidate action.
func (m *Manager) Approve(ctx context.Context, candidateID, entryID string) (*Entry, error) {
	return m.transition(ctx, candidateID, entryID, []State{StatePending}, StateApproved, "approved by candidate")
}

// Reject freezes a PENDING or APPROVED entry. The pair is never re-queued
// under the same job version.
func (m *Manager) Reject(ctx context.Context, candidateID, entryID, reason string) (*Entry, error) {
	if reason == "" {
		reason = "rejected by candidate"
	}
	return m.transition(ctx, candidateID, entryID, []State{StatePending, StateApproved}, StateRejected, reason)
}

// transition performs a conditional state change validated against the
// transition table, appending to the entry's history log.
func (m *Manager) transition(ctx context.Context, candidateID, entryID string, from []State, to State, note string) (*Entry, error) {
	var currentStr string
	err := m.pool.QueryRow(ctx,
		`SELECT state FROM queue_entries WHERE id = $1 AND candidate_id = $2`,
		entryID, candidateID,
	).Scan(&currentStr)
	if err != nil {
		return nil, ErrNotFound
	}

	current := State(currentStr)
	eligible := false
	for _, f := range from {
		if current == f {
			eligible = true
		}
	}
	if !eligible || !IsTransitionAllowed(current, to) {
		return nil, &ErrIllegalTransition{From: current, To: to}
	}

	row := m.pool.QueryRow(ctx,
		`UPDATE queue_entries
		 SET state = $1, reason = $2,
		     history_log = history_log || $3::jsonb,
		     updated_at = NOW()
		 WHERE id = $4 AND candidate_id = $5 AND state = $6
		 RETURNING `+entryColumns,
		string(to), note, historyJSON(current, to, note), entryID, candidateID, string(current),
	)
	e, err := scanEntry(row)
	if err != nil {
		// Lost a race: someone else transitioned first. The conditional
		// WHERE keeps the state machine consistent either way.
		return nil, ErrNotFound
	}

	m.publish(ctx, "EVENT_ENTRY_MOVED", map[string]string{
		"entryId":     entryID,
		"candidateId": candidateID,
		"from":        string(current),
		"to":          string(to),
	})
	return e, nil
}

// ─── Housekeeping ────────────────────────────────────────────────────────────

// AutoApproveDue promotes PENDING entries whose auto/delayed approval time
// has arrived. Safe to re-run: conditioned on current state.
func (m *Manager) AutoApproveDue(ctx context.Context) (int64, error) {
	tag, err := m.pool.Exec(ctx,
		`UPDATE queue_entries
		 SET state = 'APPROVED',
		     history_log = history_log || $1::jsonb,
		     updated_at = NOW()
		 WHERE state = 'PENDING'
		   AND approval_due_at IS NOT NULL
		   AND approval_due_at <= NOW()`,
		historyJSON(StatePending, StateApproved, "auto-approved by policy"),
	)
	if err != nil {
		return 0, fmt.Errorf("auto-approve sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireSweep transitions non-terminal entries whose TTL has elapsed.
// Idempotent: re-running the sweep never double-transitions.
func (m *Manager) ExpireSweep(ctx context.Context) (int64, error) {
	tag, err := m.pool.Exec(ctx,
		`UPDATE queue_entries
		 SET state = 'EXPIRED',
		     reason = 'time-to-live elapsed before action',
		     history_log = history_log || $1::jsonb,
		     updated_at = NOW()
		 WHERE state IN ('PENDING', 'APPROVED', 'DISPATCHING')
		   AND expires_at <= NOW()`,
		historyJSON("", StateExpired, "ttl elapsed"),
	)
	if err != nil {
		return 0, fmt.Errorf("expire sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecoverStale sweeps DISPATCHING entries claimed before the staleness
// threshold with no outcome attached back to APPROVED. This is the
// crash-recovery rule: a claim that never recorded an outcome is neither
// assumed failed nor successful.
func (m *Manager) RecoverStale(ctx context.Context) (int64, error) {
	tag, err := m.pool.Exec(ctx,
		`UPDATE queue_entries
		 SET state = 'APPROVED', channel = '',
		     history_log = history_log || $1::jsonb,
		     updated_at = NOW()
		 WHERE state = 'DISPATCHING'
		   AND outcome_id IS NULL
		   AND updated_at <= NOW() - $2::interval`,
		historyJSON(StateDispatching, StateApproved, "stale claim recovered"),
		m.staleA.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("stale-claim sweep: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		m.log.Warn("recovered stale dispatching entries", zap.Int64("count", n))
		return n, nil
	}
	return 0, nil
}

// ─── Dispatcher operations ───────────────────────────────────────────────────

// ClaimNext atomically claims the best eligible APPROVED entry, moving it to
// DISPATCHING. Candidates with an entry already in flight are skipped, which
// enforces single-flight per candidate: the NOT EXISTS subquery is the cheap
// pre-filter, and the partial unique index on (candidate_id) WHERE
// DISPATCHING is the guarantee when two workers race before either commits.
// Exactly one of two racing workers can win a given entry: the claim is a
// conditional update and skips rows locked by concurrent claims.
func (m *Manager) ClaimNext(ctx context.Context) (*Entry, error) {
	row := m.pool.QueryRow(ctx,
		`UPDATE queue_entries
		 SET state = 'DISPATCHING',
		     history_log = history_log || $1::jsonb,
		     updated_at = NOW()
		 WHERE id = (
		   SELECT e.id FROM queue_entries e
		   WHERE e.state = 'APPROVED'
		     AND e.eligible_at <= NOW()
		     AND e.expires_at > NOW()
		     AND NOT EXISTS (
		       SELECT 1 FROM queue_entries d
		       WHERE d.candidate_id = e.candidate_id AND d.state = 'DISPATCHING'
		     )
		   ORDER BY e.score DESC, e.created_at ASC
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 AND state = 'APPROVED'
		 RETURNING `+entryColumns,
		historyJSON(StateApproved, StateDispatching, "claimed by dispatcher"),
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNothingClaimable
		}
		if isUniqueViolation(err) {
			// Lost the single-flight race: another worker moved an entry
			// of the same candidate to DISPATCHING first.
			return nil, ErrNothingClaimable
		}
		return nil, fmt.Errorf("claim entry: %w", err)
	}
	return e, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SetChannel records the channel chosen for a claimed entry.
func (m *Manager) SetChannel(ctx context.Context, entryID string, ch model.ChannelKind) error {
	_, err := m.pool.Exec(ctx,
		`UPDATE queue_entries SET channel = $1 WHERE id = $2 AND state = 'DISPATCHING'`,
		string(ch), entryID,
	)
	return err
}

// Release returns a claimed entry to APPROVED without recording an outcome,
// deferring it until eligibleAt. Used when the candidate's submission cap
// for the period is reached: not a failure, the entry stays eligible for the
// next period.
func (m *Manager) Release(ctx context.Context, entryID string, eligibleAt time.Time, note string) error {
	tag, err := m.pool.Exec(ctx,
		`UPDATE queue_entries
		 SET state = 'APPROVED', channel = '', eligible_at = $1,
		     history_log = history_log || $2::jsonb,
		     updated_at = NOW()
		 WHERE id = $3 AND state = 'DISPATCHING'`,
		eligibleAt.UTC(), historyJSON(StateDispatching, StateApproved, note), entryID,
	)
	if err != nil {
		return fmt.Errorf("release entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete attaches the execution outcome and moves the entry to its
// terminal state in one transaction. Only a success = true outcome may
// produce APPLIED.
func (m *Manager) Complete(ctx context.Context, entryID string, out *model.ExecutionOutcome) (*Entry, error) {
	to := StateFailed
	reason := out.Reason
	if out.Success {
		to = StateApplied
		reason = "application submitted"
	}
	if reason == "" {
		reason = string(out.Category)
	}
	if out.CompletedAt.IsZero() {
		out.CompletedAt = time.Now().UTC()
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var outcomeID string
	err = tx.QueryRow(ctx,
		`INSERT INTO execution_outcomes
		   (entry_id, channel, success, evidence, category, reason, external_ref, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		entryID, string(out.Channel), out.Success, out.Evidence,
		string(out.Category), out.Reason, out.ExternalRef, out.CompletedAt,
	).Scan(&outcomeID)
	if err != nil {
		return nil, fmt.Errorf("insert outcome: %w", err)
	}

	row := tx.QueryRow(ctx,
		`UPDATE queue_entries
		 SET state = $1, reason = $2, outcome_id = $3, channel = $4,
		     history_log = history_log || $5::jsonb,
		     updated_at = NOW()
		 WHERE id = $6 AND state = 'DISPATCHING'
		 RETURNING `+entryColumns,
		string(to), reason, outcomeID, string(out.Channel),
		historyJSON(StateDispatching, to, reason), entryID,
	)
	e, err := scanEntry(row)
	if err != nil {
		// The entry left DISPATCHING under us (expiry sweep or recovery
		// raced the completion). The outcome insert rolls back with the tx.
		return nil, fmt.Errorf("complete entry %s: %w", entryID, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete tx: %w", err)
	}

	out.ID = outcomeID
	e.Outcome = out
	m.publish(ctx, "EVENT_APPLICATION_RESULT", map[string]string{
		"entryId":     entryID,
		"candidateId": e.CandidateID,
		"state":       string(to),
		"category":    string(out.Category),
	})
	return e, nil
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// List returns a candidate's entries, newest first. If stateFilter is
// non-empty, only entries in that state are returned.
func (m *Manager) List(ctx context.Context, candidateID string, stateFilter State) ([]Entry, error) {
	const base = `SELECT ` + entryColumns + ` FROM queue_entries WHERE candidate_id = $1`

	var (
		rows pgx.Rows
		err  error
	)
	if stateFilter != "" {
		rows, err = m.pool.Query(ctx, base+` AND state = $2 ORDER BY updated_at DESC`, candidateID, string(stateFilter))
	} else {
		rows, err = m.pool.Query(ctx, base+` ORDER BY updated_at DESC`, candidateID)
	}
	if err != nil {
		return nil, fmt.Errorf("list entries query: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list entries scan: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ListTerminal returns a candidate's terminal entries with their outcomes,
// newest first. Every terminal entry can explain why the job was or was not
// applied to.
func (m *Manager) ListTerminal(ctx context.Context, candidateID string) ([]Entry, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT e.id, e.candidate_id, e.job_id, e.job_version, e.score,
		        e.breakdown, e.reasons, e.state, e.channel, e.reason,
		        e.history_log, e.created_at, e.expires_at, e.eligible_at, e.updated_at,
		        o.id, o.channel, o.success, o.evidence, o.category,
		        o.reason, o.external_ref, o.completed_at
		 FROM queue_entries e
		 LEFT JOIN execution_outcomes o ON o.id = e.outcome_id
		 WHERE e.candidate_id = $1
		   AND e.state IN ('APPLIED', 'FAILED', 'REJECTED', 'EXPIRED')
		 ORDER BY e.updated_at DESC`,
		candidateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list terminal query: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var stateStr, channelStr string
		var oID, oChannel, oEvidence, oCategory, oReason, oRef *string
		var oSuccess *bool
		var oCompleted *time.Time
		if err := rows.Scan(
			&e.ID, &e.CandidateID, &e.JobID, &e.JobVersion, &e.Score,
			&e.Breakdown, &e.Reasons, &stateStr, &channelStr, &e.Reason,
			&e.HistoryLog, &e.CreatedAt, &e.ExpiresAt, &e.EligibleAt, &e.UpdatedAt,
			&oID, &oChannel, &oSuccess, &oEvidence, &oCategory,
			&oReason, &oRef, &oCompleted,
		); err != nil {
			return nil, fmt.Errorf("list terminal scan: %w", err)
		}
		e.State = State(stateStr)
		e.Channel = model.ChannelKind(channelStr)
		if oID != nil {
			e.Outcome = &model.ExecutionOutcome{
				ID:          *oID,
				Channel:     model.ChannelKind(deref(oChannel)),
				Success:     oSuccess != nil && *oSuccess,
				Evidence:    deref(oEvidence),
				Category:    model.FailureCategory(deref(oCategory)),
				Reason:      deref(oReason),
				ExternalRef: deref(oRef),
			}
			if oCompleted != nil {
				e.Outcome.CompletedAt = *oCompleted
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns a single entry, validating ownership.
func (m *Manager) Get(ctx context.Context, candidateID, entryID string) (*Entry, error) {
	row := m.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM queue_entries WHERE id = $1 AND candidate_id = $2`,
		entryID, candidateID,
	)
	e, err := scanEntry(row)
	if err != nil {
		return nil, ErrNotFound
	}
	return e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// publish sends a lifecycle event to Redis. Non-fatal: a publish failure
// never rolls back a queue transition.
func (m *Manager) publish(ctx context.Context, channel string, payload map[string]string) {
	payload["type"] = channel
	event, _ := json.Marshal(payload)
	if err := m.rdb.Publish(ctx, channel, event).Err(); err != nil {
		m.log.Warn("publish event failed", zap.String("event", channel), zap.Error(err))
	}
}
