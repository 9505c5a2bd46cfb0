package scoring

import (
	"strings"

	"applypilot/pipeline-service/internal/model"
)

// FilterVerdict reports whether a pair survived the hard filters, with the
// audit reason when it did not.
type FilterVerdict struct {
	Passed bool
	Reason string
}

// PassesHardFilters applies the binary exclusion rules that run before any
// score is considered actionable. A failed verdict means the pair is
// discarded and never queued.
func PassesHardFilters(c *model.CandidateProfile, j *model.JobPosting) FilterVerdict {
	if employerExcluded(c.ExcludedEmployers, j.Employer) {
		return FilterVerdict{Passed: false, Reason: "employer is in the exclusion list"}
	}

	if c.WorkAuthorization == model.AuthNeedSponsorship {
		desc := strings.ToLower(j.Description)
		if strings.Contains(desc, "no visa") || strings.Contains(desc, "no sponsorship") {
			return FilterVerdict{Passed: false, Reason: "posting does not offer visa sponsorship"}
		}
		if !strings.Contains(desc, "sponsorship") {
			return FilterVerdict{Passed: false, Reason: "posting does not mention sponsorship"}
		}
	}

	return FilterVerdict{Passed: true}
}

// employerExcluded returns true if the employer name matches any exclusion
// term, case-insensitively, in either direction of containment.
func employerExcluded(excluded []string, employer string) bool {
	if len(excluded) == 0 || employer == "" {
		return false
	}
	el := strings.ToLower(strings.TrimSpace(employer))
	for _, x := range excluded {
		xl := strings.ToLower(strings.TrimSpace(x))
		if xl == "" {
			continue
		}
		if xl == el || strings.Contains(el, xl) {
			return true
		}
	}
	return false
}
