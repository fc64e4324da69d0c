package response

import (
	"regexp"
	"strings"
)

var listMarker = regexp.MustCompile(`^(?:\d+\s*[.)]|[-*•])\s*`)

// ParseNextSteps splits the follow-up suggestions into one question per
// line, without list numbering or bullets.
func ParseNextSteps(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
