package formfill

import "applypilot/pipeline-service/internal/model"

// fieldKind names a recognizable input category on an application form.
type fieldKind string

const (
	fieldFirstName   fieldKind = "first_name"
	fieldLastName    fieldKind = "last_name"
	fieldFullName    fieldKind = "full_name"
	fieldEmail       fieldKind = "email"
	fieldPhone       fieldKind = "phone"
	fieldCity        fieldKind = "city"
	fieldLinkedIn    fieldKind = "linkedin"
	fieldResume      fieldKind = "resume"
	fieldCoverLetter fieldKind = "cover_letter"
)

// fieldMapping pairs a field category with the selectors that usually
// carry it. Order matters: the first visible match wins per category.
type fieldMapping struct {
	kind      fieldKind
	selectors []string
}

var fieldMappings = []fieldMapping{
	{fieldFirstName, []string{`input[name*="first_name"]`, `input[name*="firstName"]`, `input[id*="first"]`}},
	{fieldLastName, []string{`input[name*="last_name"]`, `input[name*="lastName"]`, `input[id*="last"]`}},
	{fieldFullName, []string{`input[name*="full_name"]`, `input[name="name"]`, `input[id="name"]`}},
	{fieldEmail, []string{`input[type="email"]`, `input[name*="email"]`, `input[id*="email"]`}},
	{fieldPhone, []string{`input[type="tel"]`, `input[name*="phone"]`, `input[id*="phone"]`}},
	{fieldCity, []string{`input[name*="city"]`, `input[id*="city"]`, `input[name*="location"]`}},
	{fieldLinkedIn, []string{`input[name*="linkedin"]`, `input[id*="linkedin"]`}},
	{fieldResume, []string{`input[type="file"][name*="resume"]`, `input[type="file"][id*="resume"]`, `input[type="file"]`}},
	{fieldCoverLetter, []string{`textarea[name*="cover"]`, `textarea[id*="cover"]`, `textarea[name*="message"]`}},
}

// fieldValue resolves the candidate data for a field category. Empty means
// nothing to fill.
func fieldValue(kind fieldKind, req *model.ExecutionRequest, message string) string {
	c := req.Candidate
	switch kind {
	case fieldFirstName:
		return firstWord(c.FullName)
	case fieldLastName:
		return lastWord(c.FullName)
	case fieldFullName:
		return c.FullName
	case fieldEmail:
		return c.Email
	case fieldPhone:
		return c.Phone
	case fieldCity:
		return c.City
	case fieldLinkedIn:
		return c.LinkedInURL
	case fieldResume:
		if req.Artifact != nil {
			return req.Artifact.Path
		}
		return ""
	case fieldCoverLetter:
		return message
	}
	return ""
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}

func lastWord(s string) string {
	last := s
	for i, r := range s {
		if r == ' ' && i+1 < len(s) {
			last = s[i+1:]
		}
	}
	return last
}
