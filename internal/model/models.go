// Package model defines the shared domain types for the pipeline service.
package model

import (
	"strings"
	"time"
)

// MatchSensitivity controls the minimum-score gate applied when queueing.
type MatchSensitivity string

const (
	SensitivityPermissive MatchSensitivity = "permissive"
	SensitivityBalanced   MatchSensitivity = "balanced"
	SensitivityStrict     MatchSensitivity = "strict"
)

// ApprovalMode controls how a pending entry becomes approved.
type ApprovalMode string

const (
	ApprovalAuto    ApprovalMode = "auto"
	ApprovalDelayed ApprovalMode = "delayed"
	ApprovalManual  ApprovalMode = "manual"
)

// WorkAuthorization mirrors the candidate's sponsorship situation.
type WorkAuthorization string

const (
	AuthCitizen         WorkAuthorization = "authorized"
	AuthNeedSponsorship WorkAuthorization = "need_sponsorship"
)

// SalaryBand is a min/max range in a single currency. Zero Min and Max
// means the band is unknown.
type SalaryBand struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Currency string `json:"currency,omitempty"`
}

// Known reports whether the band carries any information.
func (b SalaryBand) Known() bool { return b.Min > 0 || b.Max > 0 }

// CandidateProfile is the read-only view of a candidate used by the core.
// It is owned by the profile/settings collaborators.
type CandidateProfile struct {
	ID                 string            `json:"id"`
	FullName           string            `json:"fullName"`
	Email              string            `json:"email"`
	Phone              string            `json:"phone,omitempty"`
	City               string            `json:"city,omitempty"`
	LinkedInURL        string            `json:"linkedinUrl,omitempty"`
	DesiredTitles      []string          `json:"desiredTitles"`
	Salary             SalaryBand        `json:"salary"`
	PreferredLocations []string          `json:"preferredLocations"`
	RemotePreference   string            `json:"remotePreference"` // remote | hybrid | onsite | flexible
	WorkTypes          []string          `json:"workTypes"`        // full_time, contract, ...
	RelocationWilling  bool              `json:"relocationWilling"`
	YearsExperience    int               `json:"yearsExperience"`
	EducationLevel     string            `json:"educationLevel,omitempty"`
	Industries         []string          `json:"industries"`
	Skills             []string          `json:"skills"`
	ExcludedEmployers  []string          `json:"excludedEmployers"`
	WorkAuthorization  WorkAuthorization `json:"workAuthorization"`
	Sensitivity        MatchSensitivity  `json:"sensitivity"`
	Approval           ApprovalMode      `json:"approval"`
	ApprovalDelay      time.Duration     `json:"approvalDelay,omitempty"` // only for ApprovalDelayed
	DailyCap           int               `json:"dailyCap"`                // 0 = use feature-gate value
}

// JobPosting is a normalized offer produced by the ingestion collaborators.
// Immutable once scored: a changed posting must carry a new Version.
type JobPosting struct {
	ID             string     `json:"id"`
	Version        string     `json:"version"` // content fingerprint; changes make a new queue key
	Title          string     `json:"title"`
	Employer       string     `json:"employer"`
	Location       string     `json:"location"`
	Remote         bool       `json:"remote"`
	Salary         SalaryBand `json:"salary"`
	WorkType       string     `json:"workType"`
	RequiredSkills []string   `json:"requiredSkills"`
	Industry       string     `json:"industry,omitempty"`
	Source         string     `json:"source"`
	Description    string     `json:"description"`
	SubmissionHint string     `json:"submissionHint"` // mail address, form URL, or platform URL
	FetchedAt      time.Time  `json:"fetchedAt"`
	Active         bool       `json:"active"`
}

// DocumentArtifact is the candidate's primary supporting document
// (typically a resume file) required by the form and agent channels.
type DocumentArtifact struct {
	CandidateID string
	FileName    string
	Path        string
	ContentType string
}

// ChannelKind identifies the mechanism used to submit an application.
type ChannelKind string

const (
	ChannelMessage ChannelKind = "message"
	ChannelForm    ChannelKind = "form"
	ChannelAgent   ChannelKind = "agent"
	ChannelNone    ChannelKind = ""
)

// agentPlatformMarkers are URL fragments routed to the specialized agent
// channel instead of generic form automation.
var agentPlatformMarkers = []string{
	"linkedin.com/jobs",
	"linkedin.com/comm/jobs",
}

// ResolveChannel maps a job's submission hint to a channel.
// A mail address routes to the message channel, a recognized platform URL
// to the agent channel, any other URL to form automation.
func ResolveChannel(hint string) ChannelKind {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ChannelNone
	}
	if strings.Contains(hint, "@") && !strings.HasPrefix(hint, "http") {
		return ChannelMessage
	}
	lower := strings.ToLower(hint)
	for _, marker := range agentPlatformMarkers {
		if strings.Contains(lower, marker) {
			return ChannelAgent
		}
	}
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ChannelForm
	}
	return ChannelNone
}
