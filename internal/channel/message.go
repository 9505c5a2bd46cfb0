// Package channel implements the thin submission strategies used by the
// dispatcher: a mail-based message channel and a delegate to an external
// platform automation agent. Both honor the same strict-evidence rule as
// form automation: no observed action is never reported as success.
package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/model"
)

// Composer produces the message body for one application.
type Composer interface {
	ApplicationMessage(ctx context.Context, cand *model.CandidateProfile, job *model.JobPosting) string
}

// SMTPConfig holds transport settings for the message channel.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MessageChannel submits applications by sending the candidate's message
// and document to the address in the job's submission hint.
type MessageChannel struct {
	cfg      SMTPConfig
	composer Composer
	log      *zap.Logger
}

// NewMessageChannel returns a configured message channel.
func NewMessageChannel(cfg SMTPConfig, composer Composer, log *zap.Logger) *MessageChannel {
	return &MessageChannel{cfg: cfg, composer: composer, log: log}
}

// Kind identifies the channel.
func (m *MessageChannel) Kind() model.ChannelKind { return model.ChannelMessage }

// Execute composes and transmits the application message. A transmission
// acknowledgment is the success signal; an invalid address is a terminal
// failure, while transport errors surface as retryable errors.
func (m *MessageChannel) Execute(ctx context.Context, req *model.ExecutionRequest) (*model.ExecutionOutcome, error) {
	recipient := strings.TrimSpace(req.Job.SubmissionHint)

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return model.Failure(model.ChannelMessage, model.FailureInternal,
			fmt.Sprintf("invalid sender address %q", m.cfg.From)), nil
	}
	if err := msg.To(recipient); err != nil {
		// Not retryable: the posting carries a bad address.
		return model.Failure(model.ChannelMessage, model.FailureInternal,
			fmt.Sprintf("invalid recipient address %q", recipient)), nil
	}

	msg.Subject(fmt.Sprintf("Application for %s - %s", req.Job.Title, req.Candidate.FullName))
	msg.SetBodyString(mail.TypeTextPlain, m.composer.ApplicationMessage(ctx, req.Candidate, req.Job))
	if req.Artifact != nil {
		msg.AttachFile(req.Artifact.Path, mail.WithFileName(req.Artifact.FileName))
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		// Transport error: the dispatcher's retry policy decides whether
		// another attempt is worth it.
		return nil, fmt.Errorf("send application mail: %w", err)
	}

	m.log.Info("application mail sent",
		zap.String("jobId", req.Job.ID),
		zap.String("recipient", recipient),
	)
	return &model.ExecutionOutcome{
		Channel:     model.ChannelMessage,
		Success:     true,
		Evidence:    "message transmitted and accepted by the mail server",
		ExternalRef: recipient,
	}, nil
}
