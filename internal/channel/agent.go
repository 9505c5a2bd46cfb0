package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/model"
)

const agentTimeout = 5 * time.Minute

// AgentChannel delegates submission to an external automation agent scoped
// to a single platform. The agent's structured result is authoritative for
// what it did, but the strict-evidence gate still applies: a report of zero
// actions taken is never translated into success.
type AgentChannel struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewAgentChannel returns a channel that talks to the agent at baseURL.
func NewAgentChannel(baseURL string, log *zap.Logger) *AgentChannel {
	return &AgentChannel{
		baseURL: baseURL,
		client:  &http.Client{Timeout: agentTimeout},
		log:     log,
	}
}

// Kind identifies the channel.
func (a *AgentChannel) Kind() model.ChannelKind { return model.ChannelAgent }

// agentRequest is the payload posted to the agent.
type agentRequest struct {
	JobURL     string                  `json:"jobUrl"`
	Candidate  *model.CandidateProfile `json:"candidate"`
	ResumePath string                  `json:"resumePath,omitempty"`
}

// agentReport mirrors the agent's structured result.
type agentReport struct {
	Success      bool   `json:"success"`
	ActionsTaken int    `json:"actionsTaken"`
	Confirmation bool   `json:"confirmation"`
	RunID        string `json:"runId"`
	Error        string `json:"error,omitempty"`
}

// Execute posts the job to the agent and converts its report into an
// outcome under the strict-evidence rule.
func (a *AgentChannel) Execute(ctx context.Context, req *model.ExecutionRequest) (*model.ExecutionOutcome, error) {
	payload := agentRequest{
		JobURL:    req.Job.SubmissionHint,
		Candidate: req.Candidate,
	}
	if req.Artifact != nil {
		payload.ResumePath = req.Artifact.Path
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return model.Failure(model.ChannelAgent, model.FailureInternal,
			fmt.Sprintf("marshal agent request: %v", err)), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/apply", bytes.NewReader(body))
	if err != nil {
		return model.Failure(model.ChannelAgent, model.FailureInternal,
			fmt.Sprintf("build agent request: %v", err)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call automation agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("automation agent returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Failure(model.ChannelAgent, model.FailureInternal,
			fmt.Sprintf("automation agent rejected the request with status %d", resp.StatusCode)), nil
	}

	var report agentReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return model.Failure(model.ChannelAgent, model.FailureInternal,
			fmt.Sprintf("undecodable agent report: %v", err)), nil
	}

	return outcomeFromReport(report), nil
}

// outcomeFromReport applies the strict-evidence gate to the agent's own
// verdict. The agent may claim success, but with zero actions taken the
// outcome is no_progress_made regardless.
func outcomeFromReport(r agentReport) *model.ExecutionOutcome {
	evidence := fmt.Sprintf("agent reported %d actions taken, confirmation=%t", r.ActionsTaken, r.Confirmation)

	out := &model.ExecutionOutcome{
		Channel:     model.ChannelAgent,
		Evidence:    evidence,
		ExternalRef: r.RunID,
	}

	switch {
	case r.ActionsTaken == 0:
		out.Category = model.FailureNoProgress
		out.Reason = "agent took no actions"
	case !r.Success:
		out.Category = model.FailureInternal
		out.Reason = r.Error
		if out.Reason == "" {
			out.Reason = "agent reported failure"
		}
	case !r.Confirmation:
		out.Category = model.FailureNoProgress
		out.Reason = "agent acted but observed no confirmation"
	default:
		out.Success = true
	}
	return out
}
