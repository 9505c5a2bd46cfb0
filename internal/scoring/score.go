// Package scoring computes a 0–100 match score between a candidate profile
// and a job posting. The engine is pure and deterministic: no I/O, no clock,
// identical inputs always produce identical results.
package scoring

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"applypilot/pipeline-service/internal/model"
)

// Weights are the per-factor maxima. They must sum to 100.
// These are product-tuning values, not derived constants.
type Weights struct {
	Title      int
	Salary     int
	Location   int
	WorkType   int
	Experience int
	Industry   int
	Skills     int
}

// DefaultWeights returns the standard factor weighting.
func DefaultWeights() Weights {
	return Weights{
		Title:      25,
		Salary:     20,
		Location:   15,
		WorkType:   15,
		Experience: 10,
		Industry:   10,
		Skills:     5,
	}
}

// Sum returns the total of all factor weights.
func (w Weights) Sum() int {
	return w.Title + w.Salary + w.Location + w.WorkType + w.Experience + w.Industry + w.Skills
}

// Breakdown holds the per-factor sub-scores that sum to the total.
type Breakdown struct {
	Title      int `json:"title"`
	Salary     int `json:"salary"`
	Location   int `json:"location"`
	WorkType   int `json:"workType"`
	Experience int `json:"experience"`
	Industry   int `json:"industry"`
	Skills     int `json:"skills"`
}

// Result is the outcome of scoring one (candidate, job) pair.
type Result struct {
	Total     int       `json:"total"`
	Breakdown Breakdown `json:"breakdown"`
	Reasons   []string  `json:"reasons"`
}

const maxReasons = 5

// Engine scores pairs using a fixed weight set.
type Engine struct {
	weights Weights
}

// NewEngine validates the weights and returns an Engine.
func NewEngine(w Weights) (*Engine, error) {
	if w.Sum() != 100 {
		return nil, fmt.Errorf("scoring weights must sum to 100, got %d", w.Sum())
	}
	return &Engine{weights: w}, nil
}

// Score computes the weighted total, per-factor breakdown and match reasons.
// The total is always the exact sum of the seven sub-scores.
func (e *Engine) Score(c *model.CandidateProfile, j *model.JobPosting) Result {
	w := e.weights
	var b Breakdown
	var reasons []string

	b.Title = scaled(matchTitle(c.DesiredTitles, j.Title), 25, w.Title)
	if b.Title >= scaled(20, 25, w.Title) {
		reasons = append(reasons, "Job title matches your desired titles")
	}

	b.Salary = scaled(matchSalary(c.Salary, j.Salary), 20, w.Salary)
	if b.Salary >= scaled(15, 20, w.Salary) {
		reasons = append(reasons, "Salary range aligns with your expectations")
	}

	b.Location = scaled(matchLocation(c.PreferredLocations, c.RelocationWilling, j.Location, j.Remote), 15, w.Location)
	if b.Location >= scaled(10, 15, w.Location) {
		reasons = append(reasons, "Location fits your preferences")
	}

	b.WorkType = scaled(matchWorkType(c.WorkTypes, c.RemotePreference, j.WorkType, j.Remote), 15, w.WorkType)
	if b.WorkType >= scaled(10, 15, w.WorkType) {
		reasons = append(reasons, "Work type matches your preferences")
	}

	b.Experience = scaled(matchExperience(c.YearsExperience, j.Description), 10, w.Experience)
	if b.Experience >= scaled(7, 10, w.Experience) {
		reasons = append(reasons, "Your experience level fits the role")
	}

	b.Industry = scaled(matchIndustry(c.Industries, j.Industry, j.Description, j.Employer), 10, w.Industry)
	if b.Industry >= scaled(7, 10, w.Industry) {
		reasons = append(reasons, "Industry aligns with your background")
	}

	b.Skills = scaled(matchSkills(c.Skills, j.RequiredSkills, j.Description), 5, w.Skills)
	if b.Skills >= scaled(3, 5, w.Skills) {
		reasons = append(reasons, "Your skills match the requirements")
	}

	total := b.Title + b.Salary + b.Location + b.WorkType + b.Experience + b.Industry + b.Skills
	if total > 100 {
		total = 100
	}
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}

	return Result{Total: total, Breakdown: b, Reasons: reasons}
}

// scaled rescales a sub-score expressed against the default factor maximum
// onto the configured weight. Rounds half up so sub-scores stay integers.
func scaled(points, defaultMax, weight int) int {
	if weight == defaultMax {
		return points
	}
	return (points*weight + defaultMax/2) / defaultMax
}

// ── Sub-scorers (points against the default maxima) ────────────────────────

// matchTitle: 0–25. Exact match beats containment beats token overlap.
func matchTitle(desired []string, jobTitle string) int {
	if len(desired) == 0 || jobTitle == "" {
		return 0
	}
	jt := strings.ToLower(strings.TrimSpace(jobTitle))

	for _, d := range desired {
		if strings.ToLower(strings.TrimSpace(d)) == jt {
			return 25
		}
	}
	for _, d := range desired {
		dl := strings.ToLower(strings.TrimSpace(d))
		if dl == "" {
			continue
		}
		if strings.Contains(jt, dl) || strings.Contains(dl, jt) {
			return 20
		}
		if tokenOverlap(dl, jt) >= 2 {
			return 15
		}
	}
	return 5
}

func tokenOverlap(a, b string) int {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(a) {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range strings.Fields(b) {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

// matchSalary: 0–20. Full credit when the job's band sits inside the
// candidate's; zero when the job tops out below the candidate's minimum;
// neutral 10 when the job publishes no band at all.
func matchSalary(want, offer model.SalaryBand) int {
	if !offer.Known() {
		return 10
	}
	userMax := want.Max
	if userMax == 0 {
		userMax = int(^uint(0) >> 1)
	}
	offerMax := offer.Max
	if offerMax == 0 {
		offerMax = offer.Min
	}

	if offerMax < want.Min {
		return 0
	}
	if offer.Min > userMax {
		return 5
	}
	switch {
	case offer.Min >= want.Min && offerMax <= userMax:
		return 20 // band fully inside the candidate's range
	case offer.Min >= want.Min:
		return 18
	case offerMax >= userMax:
		return 15
	default:
		return 12
	}
}

// matchLocation: 0–15.
func matchLocation(preferred []string, relocation bool, jobLocation string, remote bool) int {
	if remote {
		return 15
	}
	if len(preferred) == 0 {
		return 8
	}
	jl := strings.ToLower(jobLocation)
	for _, p := range preferred {
		pl := strings.ToLower(strings.TrimSpace(p))
		if pl == "" {
			continue
		}
		if strings.Contains(jl, pl) || strings.Contains(pl, jl) {
			return 15
		}
	}
	if relocation {
		return 10
	}
	return 3
}

// matchWorkType: 0–15, split 8 for employment type + 7 for the
// remote/hybrid/onsite preference.
func matchWorkType(types []string, locationPref, jobType string, remote bool) int {
	score := 0

	jt := strings.ToLower(jobType)
	for _, t := range types {
		tl := strings.ToLower(strings.TrimSpace(t))
		if tl == "" {
			continue
		}
		if tl == jt {
			score += 8
			break
		}
		if strings.Contains(jt, tl) {
			score += 5
			break
		}
	}

	pref := strings.ToLower(locationPref)
	if pref == "" {
		pref = "flexible"
	}
	if remote {
		switch pref {
		case "remote", "flexible":
			score += 7
		case "hybrid":
			score += 4
		}
	} else {
		switch pref {
		case "onsite", "flexible":
			score += 7
		case "hybrid":
			score += 5
		}
	}

	if score > 15 {
		score = 15
	}
	return score
}

var yearsPattern = regexp.MustCompile(`(\d+)\+?\s*years?`)

// requiredYears extracts the experience demand from the raw description.
// Seniority keywords win over an explicit year count; default is 3.
func requiredYears(description string) int {
	text := strings.ToLower(description)
	switch {
	case strings.Contains(text, "entry") || strings.Contains(text, "junior"):
		return 1
	case strings.Contains(text, "senior"):
		return 5
	case strings.Contains(text, "lead") || strings.Contains(text, "principal"):
		return 8
	}
	if m := yearsPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 3
}

// matchExperience: 0–10. Full credit within a two-year tolerance band above
// the requirement, decaying credit when substantially overqualified, partial
// credit one year under.
func matchExperience(userYears int, description string) int {
	req := requiredYears(description)
	switch {
	case userYears >= req && userYears <= req+2:
		return 10
	case userYears > req+2 && userYears <= req+5:
		return 8
	case userYears > req+5:
		return 5
	case userYears >= req-1:
		return 7
	default:
		return 3
	}
}

// matchIndustry: 0–10. The job's industry tag is checked first, then a
// fallback scan of the description and employer name.
func matchIndustry(industries []string, jobIndustry, description, employer string) int {
	if len(industries) == 0 {
		return 5
	}
	tag := strings.ToLower(jobIndustry)
	combined := strings.ToLower(description + " " + employer)
	for _, ind := range industries {
		il := strings.ToLower(strings.TrimSpace(ind))
		if il == "" {
			continue
		}
		if tag != "" && (tag == il || strings.Contains(tag, il) || strings.Contains(il, tag)) {
			return 10
		}
		if strings.Contains(combined, il) {
			return 10
		}
	}
	return 3
}

// matchSkills: 0–5, step function on the number of matched skills.
func matchSkills(skills, required []string, description string) int {
	if len(skills) == 0 {
		return 0
	}
	combined := strings.ToLower(strings.Join(required, " ") + " " + description)
	matched := 0
	for _, s := range skills {
		sl := strings.ToLower(strings.TrimSpace(s))
		if sl != "" && strings.Contains(combined, sl) {
			matched++
		}
	}
	switch {
	case matched >= 5:
		return 5
	case matched >= 3:
		return 4
	case matched >= 1:
		return 3
	default:
		return 0
	}
}
