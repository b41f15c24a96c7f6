package mapper

import (
	"regexp"

	"github.com/dlclark/regexp2"
)

// matchPattern evaluates pattern against s unanchored unless pattern itself
// uses explicit anchors. The standard library's regexp
// package is RE2-based and therefore already linear-time; it is tried
// first. Patterns a canister built with another language's regex dialect
// may carry constructs RE2 cannot express (backreferences, lookaround);
// for those, matchPattern falls back to github.com/dlclark/regexp2 with
// its RE2 syntax option, which accepts a broader syntax than Go's regexp.
// regexp2 is a backtracking engine and no match timeout is set, so
// matching on this fallback path has no linear-time bound.
func matchPattern(pattern, s string) (bool, error) {
	if re, err := regexp.Compile(pattern); err == nil {
		return re.MatchString(s), nil
	}
	re2, err := regexp2.Compile(pattern, regexp2.RE2)
	if err != nil {
		return false, err
	}
	return re2.MatchString(s)
}
