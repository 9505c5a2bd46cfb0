package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisNotifier publishes candidate-facing events to Redis for the
// notification collaborator to render and deliver. Fire-and-forget.
type RedisNotifier struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisNotifier returns a Notifier backed by Redis pub/sub.
func NewRedisNotifier(rdb *redis.Client, log *zap.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, log: log}
}

// Notify publishes the event. Failures are logged and swallowed: a
// notification failure must never roll back a queue transition.
func (n *RedisNotifier) Notify(ctx context.Context, candidateID, event string, payload map[string]string) {
	if payload == nil {
		payload = map[string]string{}
	}
	payload["candidateId"] = candidateID
	payload["event"] = event
	body, _ := json.Marshal(payload)
	if err := n.rdb.Publish(ctx, "CANDIDATE_NOTIFICATIONS", body).Err(); err != nil {
		n.log.Warn("notify publish failed",
			zap.String("candidateId", candidateID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

// RedisSubmissionCounter tracks per-candidate submissions per UTC day.
// Keys expire shortly after the day rolls over.
type RedisSubmissionCounter struct {
	rdb *redis.Client
}

// NewRedisSubmissionCounter returns a SubmissionCounter backed by Redis.
func NewRedisSubmissionCounter(rdb *redis.Client) *RedisSubmissionCounter {
	return &RedisSubmissionCounter{rdb: rdb}
}

func submissionKey(candidateID string) string {
	return fmt.Sprintf("submissions:%s:%s", candidateID, time.Now().UTC().Format("2006-01-02"))
}

// SubmissionsToday returns the candidate's submission count for the
// current UTC day.
func (c *RedisSubmissionCounter) SubmissionsToday(ctx context.Context, candidateID string) (int, error) {
	n, err := c.rdb.Get(ctx, submissionKey(candidateID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get submission counter: %w", err)
	}
	return n, nil
}

// RecordSubmission increments today's counter, setting a 48h expiry so
// stale keys clean themselves up.
func (c *RedisSubmissionCounter) RecordSubmission(ctx context.Context, candidateID string) error {
	key := submissionKey(candidateID)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// PostgresFeatureGate reads the billing collaborator's per-plan daily
// application cap.
type PostgresFeatureGate struct {
	pool       *pgxpool.Pool
	defaultCap int
}

// NewPostgresFeatureGate returns a FeatureGate with a fallback cap used
// when the billing collaborator has no row for the candidate.
func NewPostgresFeatureGate(pool *pgxpool.Pool, defaultCap int) *PostgresFeatureGate {
	if defaultCap <= 0 {
		defaultCap = 10
	}
	return &PostgresFeatureGate{pool: pool, defaultCap: defaultCap}
}

// ApplicationCapToday returns the candidate's daily submission cap.
func (g *PostgresFeatureGate) ApplicationCapToday(ctx context.Context, candidateID string) (int, error) {
	var limit int
	err := g.pool.QueryRow(ctx,
		`SELECT daily_application_cap FROM plan_entitlements
		 WHERE candidate_id = $1`,
		candidateID,
	).Scan(&limit)
	if err != nil {
		return g.defaultCap, nil
	}
	return limit, nil
}
