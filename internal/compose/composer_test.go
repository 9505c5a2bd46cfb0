package compose

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/model"
)

func TestNew_EmptyKeyDisablesGeneration(t *testing.T) {
	c, err := New(context.Background(), "", "", zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, c.client)
	assert.Equal(t, defaultModel, c.model)
}

func TestNew_KeepsConfiguredModel(t *testing.T) {
	c, err := New(context.Background(), "", "gemini-1.5-pro", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-pro", c.model)
}

// Without a client the composer serves the deterministic template.
func TestApplicationMessage_TemplateFallback(t *testing.T) {
	c, err := New(context.Background(), "", "", zap.NewNop())
	require.NoError(t, err)

	cand := &model.CandidateProfile{FullName: "Dana Example", YearsExperience: 6}
	job := &model.JobPosting{Title: "Backend Engineer", Employer: "Globex"}

	msg := c.ApplicationMessage(context.Background(), cand, job)

	assert.Contains(t, msg, "Backend Engineer")
	assert.Contains(t, msg, "Globex")
	assert.Contains(t, msg, "Dana Example")
	assert.Contains(t, msg, "6 years")
}

// A nil composer still answers: callers never need a nil guard.
func TestApplicationMessage_NilReceiver(t *testing.T) {
	var c *Composer
	msg := c.ApplicationMessage(context.Background(), &model.CandidateProfile{FullName: "A"}, &model.JobPosting{Title: "B"})
	assert.NotEmpty(t, msg)
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 50)
	assert.Len(t, truncate(long, 10), 13) // 10 runes plus ellipsis
	assert.Equal(t, "short", truncate("short", 10))
}
