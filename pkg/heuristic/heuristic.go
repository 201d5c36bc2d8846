// Package heuristic holds signal matchers that judge how reliable a node's
// attributes are as match keys. Matchers never fail: a matcher with nothing to
// work with returns zero confidence and an explanation.
package heuristic

import (
	"time"

	"github.com/dlclark/regexp2"
)

// Matcher names reported in Result.
const (
	MatcherIDStability   = "id_stability"
	MatcherPath          = "path"
	MatcherTextStability = "text_stability"
)

// Result is the verdict of one matcher on one node.
type Result struct {
	Matcher    string  `json:"matcher"`
	Confidence float64 `json:"confidence"`
	PassedGate bool    `json:"passedGate"`
	Explain    string  `json:"explain"`
}

const patternTimeout = 50 * time.Millisecond

func mustCompile(pattern string) *regexp2.Regexp {
	re := regexp2.MustCompile(pattern, regexp2.None)
	re.MatchTimeout = patternTimeout
	return re
}

// matches treats a timed-out evaluation as no match.
func matches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
