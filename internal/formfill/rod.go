package formfill

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/model"
)

// BrowserConfig holds the headless browser settings for form automation.
type BrowserConfig struct {
	Headless          bool
	NavigationTimeout time.Duration
	StepTimeout       time.Duration
	MaxSteps          int
	ScreenshotDir     string // empty disables screenshot evidence
}

// DefaultBrowserConfig returns production settings.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
		StepTimeout:       10 * time.Second,
		MaxSteps:          10,
	}
}

// Composer produces the free-text content typed into cover-letter fields.
type Composer interface {
	ApplicationMessage(ctx context.Context, cand *model.CandidateProfile, job *model.JobPosting) string
}

// Adapter is the form-filling execution channel. Each execution launches an
// incognito page, traverses the form and evaluates the strict-success rule.
type Adapter struct {
	cfg      BrowserConfig
	composer Composer
	log      *zap.Logger
}

// NewAdapter returns a configured form channel.
func NewAdapter(cfg BrowserConfig, composer Composer, log *zap.Logger) *Adapter {
	return &Adapter{cfg: cfg, composer: composer, log: log}
}

// Kind identifies the channel.
func (a *Adapter) Kind() model.ChannelKind { return model.ChannelForm }

// Execute drives the job's application form to completion or failure.
// An error return means a transient driver/navigation failure eligible for
// retry; a returned outcome is final for this attempt.
func (a *Adapter) Execute(ctx context.Context, req *model.ExecutionRequest) (*model.ExecutionOutcome, error) {
	url, err := launcher.New().Headless(a.cfg.Headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	defer browser.Close()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	if err := page.Timeout(a.cfg.NavigationTimeout).Navigate(req.Job.SubmissionHint); err != nil {
		return nil, fmt.Errorf("navigate to form: %w", err)
	}
	if err := page.Timeout(a.cfg.NavigationTimeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for form load: %w", err)
	}

	message := ""
	if a.composer != nil {
		message = a.composer.ApplicationMessage(ctx, req.Candidate, req.Job)
	}

	sess := &rodSession{
		page:    page,
		cfg:     a.cfg,
		req:     req,
		message: message,
		log:     a.log,
	}

	progress, err := Traverse(ctx, sess, a.cfg.MaxSteps)
	if err != nil {
		return nil, err
	}

	out := Evaluate(progress)
	if ref := sess.EvidenceRef(ctx); ref != "" {
		out.ExternalRef = ref
	}
	a.log.Info("form traversal finished",
		zap.String("jobId", req.Job.ID),
		zap.Bool("success", out.Success),
		zap.String("evidence", out.Evidence),
	)
	return out, nil
}

// ─── rod-backed Session ──────────────────────────────────────────────────────

type rodSession struct {
	page    *rod.Page
	cfg     BrowserConfig
	req     *model.ExecutionRequest
	message string
	log     *zap.Logger
}

// challengeSelectors mark blocking interactive verification widgets.
var challengeSelectors = []string{
	`iframe[src*="recaptcha"]`,
	`.g-recaptcha`,
	`iframe[src*="hcaptcha"]`,
	`.h-captcha`,
	`iframe[src*="turnstile"]`,
	`#challenge-form`,
}

func (s *rodSession) DetectChallenge(ctx context.Context) (bool, error) {
	for _, sel := range challengeSelectors {
		els, err := s.page.Context(ctx).Elements(sel)
		if err != nil {
			continue
		}
		if len(els) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *rodSession) FillFields(ctx context.Context) (int, error) {
	filled := 0
	for _, f := range fieldMappings {
		value := fieldValue(f.kind, s.req, s.message)
		if value == "" {
			continue
		}
		for _, sel := range f.selectors {
			el, err := firstVisible(s.page.Context(ctx), sel)
			if err != nil || el == nil {
				continue
			}
			if f.kind == fieldResume {
				if err := el.SetFiles([]string{value}); err != nil {
					s.log.Debug("file upload failed", zap.String("selector", sel), zap.Error(err))
					continue
				}
			} else {
				if err := el.Input(value); err != nil {
					s.log.Debug("field input failed", zap.String("selector", sel), zap.Error(err))
					continue
				}
			}
			filled++
			break
		}
	}
	return filled, nil
}

// controlWords identify a continue/submit-class control by its label.
var controlWords = []string{"submit", "apply", "continue", "next", "send"}

func (s *rodSession) ActivateControl(ctx context.Context) (bool, error) {
	els, err := s.page.Context(ctx).Elements(`button, input[type="submit"], a[role="button"]`)
	if err != nil {
		return false, nil
	}
	for _, el := range els {
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		label, err := el.Text()
		if err != nil {
			continue
		}
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			if t, err := el.Attribute("value"); err == nil && t != nil {
				label = strings.ToLower(*t)
			}
		}
		if !matchesControl(label, el) {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			continue
		}
		// Give the page a chance to navigate or swap the step in place.
		waitCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
		_ = s.page.Context(waitCtx).WaitLoad()
		cancel()
		return true, nil
	}
	return false, nil
}

func matchesControl(label string, el *rod.Element) bool {
	for _, w := range controlWords {
		if strings.Contains(label, w) {
			return true
		}
	}
	if t, err := el.Attribute("type"); err == nil && t != nil && *t == "submit" {
		return true
	}
	return false
}

// confirmationPhrases are the explicit success signals recognized on a
// post-submit page.
var confirmationPhrases = []string{
	"application submitted",
	"application received",
	"successfully submitted",
	"thank you for applying",
	"thank you for your application",
	"we have received your application",
}

func (s *rodSession) ConfirmationVisible(ctx context.Context) (bool, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return false, fmt.Errorf("read page: %w", err)
	}
	lower := strings.ToLower(html)
	for _, phrase := range confirmationPhrases {
		if strings.Contains(lower, phrase) {
			return true, nil
		}
	}
	return false, nil
}

// EvidenceRef captures a screenshot of the terminal page state and returns
// its handle. Empty when screenshots are disabled or capture fails.
func (s *rodSession) EvidenceRef(ctx context.Context) string {
	if s.cfg.ScreenshotDir == "" {
		return ""
	}
	shot, err := s.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		s.log.Debug("screenshot capture failed", zap.Error(err))
		return ""
	}
	path := filepath.Join(s.cfg.ScreenshotDir, uuid.NewString()+".png")
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		s.log.Debug("screenshot write failed", zap.Error(err))
		return ""
	}
	return path
}

// firstVisible returns the first visible element matching the selector, or
// nil when none is present right now (no waiting).
func firstVisible(page *rod.Page, selector string) (*rod.Element, error) {
	els, err := page.Elements(selector)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if visible, err := el.Visible(); err == nil && visible {
			return el, nil
		}
	}
	return nil, nil
}
