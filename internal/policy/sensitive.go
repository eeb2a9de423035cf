package policy

import "strings"

// SensitiveKeywords hint at safety-sensitive travel advice. Matching is a
// case-insensitive substring check, so "hitchhik" covers every inflection.
var SensitiveKeywords = []string{
	"illegal", "drug", "weapon", "danger", "unsafe", "risk",
	"trespass", "cliff", "hitchhik", "alone at night", "unregulated",
}

// MatchSensitive returns the first sensitive keyword found in text.
func MatchSensitive(text string) (keyword string, ok bool) {
	in := strings.ToLower(text)
	if strings.TrimSpace(in) == "" {
		return "", false
	}
	for _, kw := range SensitiveKeywords {
		if strings.Contains(in, kw) {
			return kw, true
		}
	}
	return "", false
}

func IsSensitive(text string) bool {
	_, ok := MatchSensitive(text)
	return ok
}
