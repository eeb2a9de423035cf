package traveler

import (
	"sort"
	"strings"
)

// BuildProfileSummary renders a record as a compact, stable text block for prompts.
func BuildProfileSummary(rec Record) string {
	lines := []string{"Name: " + rec.Name()}

	for _, f := range Fields {
		v := rec.Profile.Get(f.Key)
		if v.Empty() {
			continue
		}
		lines = append(lines, f.Label+": "+v.String()+f.Suffix)
	}

	if len(rec.LearnedExtras) > 0 {
		keys := make([]string, 0, len(rec.LearnedExtras))
		for k := range rec.LearnedExtras {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines = append(lines, "Learned preferences:")
		for _, k := range keys {
			lines = append(lines, k+": "+extraText(rec.LearnedExtras[k]))
		}
	}

	if summary := strings.TrimSpace(rec.History.Summary); summary != "" {
		lines = append(lines, "Conversation summary: "+summary)
	}

	return strings.Join(lines, "\n")
}

func extraText(x any) string {
	switch t := x.(type) {
	case []any, []string:
		return ValueOf(t).String()
	default:
		return textOf(t)
	}
}
