package model_test

import (
	"testing"

	"applypilot/pipeline-service/internal/model"
)

// ── ResolveChannel ─────────────────────────────────────────────────────────

func TestResolveChannel(t *testing.T) {
	cases := []struct {
		name string
		hint string
		want model.ChannelKind
	}{
		{"plain mail address", "jobs@acme.example", model.ChannelMessage},
		{"mail with display padding", "  hiring@globex.example  ", model.ChannelMessage},
		{"linkedin posting", "https://www.linkedin.com/jobs/view/12345", model.ChannelAgent},
		{"linkedin comm url", "https://www.linkedin.com/comm/jobs/view/9", model.ChannelAgent},
		{"generic https form", "https://careers.acme.example/apply/42", model.ChannelForm},
		{"generic http form", "http://jobs.example.org/postings/7", model.ChannelForm},
		{"empty hint", "", model.ChannelNone},
		{"whitespace only", "   ", model.ChannelNone},
		{"unusable free text", "call us to apply", model.ChannelNone},
	}
	for _, c := range cases {
		if got := model.ResolveChannel(c.hint); got != c.want {
			t.Errorf("%s: ResolveChannel(%q) = %q, want %q", c.name, c.hint, got, c.want)
		}
	}
}

// A URL with an @ in its query must not be mistaken for a mail address.
func TestResolveChannel_URLWithAtSign(t *testing.T) {
	got := model.ResolveChannel("https://careers.acme.example/apply?contact=hr@acme.example")
	if got != model.ChannelForm {
		t.Errorf("URL containing @ resolved to %q, want %q", got, model.ChannelForm)
	}
}

// ── SalaryBand ─────────────────────────────────────────────────────────────

func TestSalaryBand_Known(t *testing.T) {
	if (model.SalaryBand{}).Known() {
		t.Error("zero band should not be Known")
	}
	if !(model.SalaryBand{Min: 50000}).Known() {
		t.Error("band with only Min should be Known")
	}
	if !(model.SalaryBand{Max: 90000}).Known() {
		t.Error("band with only Max should be Known")
	}
}

// ── Failure ────────────────────────────────────────────────────────────────

func TestFailure(t *testing.T) {
	out := model.Failure(model.ChannelForm, model.FailureChallengeBlocked, "captcha present")
	if out.Success {
		t.Error("Failure must never build a successful outcome")
	}
	if out.Channel != model.ChannelForm || out.Category != model.FailureChallengeBlocked {
		t.Errorf("Failure populated channel=%q category=%q", out.Channel, out.Category)
	}
	if out.Reason != "captcha present" {
		t.Errorf("Failure reason = %q", out.Reason)
	}
}
