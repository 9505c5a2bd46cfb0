// Package compose produces the free-text content submitted with an
// application: the message body for mail submissions and the cover-text
// answers for form fields.
//
// When a Gemini generator is configured it drafts the text; otherwise a
// deterministic template is used. An execution never fails because
// generation failed — the template is always the fallback.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"applypilot/pipeline-service/internal/model"
)

const defaultModel = "gemini-2.5-flash"

// fallbackTemplate is used whenever generation is disabled or fails.
const fallbackTemplate = `Hello,

I am writing to apply for the %s position at %s. With %d years of
experience, I believe my background is a strong fit for this role.
My resume is attached; I would welcome the chance to discuss further.

Best regards,
%s`

// Composer drafts application text.
type Composer struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// New returns a Composer. An empty apiKey disables generation entirely:
// the composer still works, serving templated text.
func New(ctx context.Context, apiKey, modelName string, log *zap.Logger) (*Composer, error) {
	c := &Composer{log: log, model: strings.TrimSpace(modelName)}
	if c.model == "" {
		c.model = defaultModel
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.client = client
	return c, nil
}

// ApplicationMessage returns the cover text for one (candidate, job) pair.
func (c *Composer) ApplicationMessage(ctx context.Context, cand *model.CandidateProfile, job *model.JobPosting) string {
	fallback := fmt.Sprintf(fallbackTemplate, job.Title, job.Employer, cand.YearsExperience, cand.FullName)

	if c == nil || c.client == nil {
		return fallback
	}

	prompt := fmt.Sprintf(
		"Write a short, professional job application message (under 150 words, plain text, no subject line).\n"+
			"Candidate: %s, %d years of experience, skills: %s.\n"+
			"Role: %s at %s.\nJob description:\n%s",
		cand.FullName, cand.YearsExperience, strings.Join(cand.Skills, ", "),
		job.Title, job.Employer, truncate(job.Description, 2000),
	)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		c.log.Warn("message generation failed, using template",
			zap.String("jobId", job.ID), zap.Error(err))
		return fallback
	}
	return text
}

func (c *Composer) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if t := strings.TrimSpace(part.Text); t != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(t)
			}
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("empty generation response")
	}
	return out, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
