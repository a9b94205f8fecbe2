package dash

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// templateVars holds the substitution values for one template expansion.
// Number and Time are running counters owned by the resolver; the engine
// never mutates them, it only reports which ones a template referenced so
// the caller can advance the right counter.
type templateVars struct {
	RepresentationID string
	Bandwidth        int
	Number           int
	Time             uint64
}

// placeholderUse counts how many distinct counter placeholders a template
// referenced during one expansion. Real-world templates reference exactly
// one of $Number$/$Number%0Nd$ or $Time$; both counters exist regardless.
type placeholderUse struct {
	Number int
	Time   int
}

var (
	numberPaddedRE = regexp.MustCompile(`\$Number%0?(\d+)d\$`)
	audioLangRE    = regexp.MustCompile(`as=audio_(.*?)\)`)
)

// expandTemplate rewrites every recognized placeholder in tmpl. Each
// placeholder is independently optional; unrecognized text passes through
// untouched.
func expandTemplate(tmpl string, v templateVars) (string, placeholderUse) {
	var used placeholderUse
	out := tmpl

	if strings.Contains(out, "$RepresentationID$") {
		out = strings.ReplaceAll(out, "$RepresentationID$", v.RepresentationID)
	}
	if strings.Contains(out, "$Bandwidth$") {
		out = strings.ReplaceAll(out, "$Bandwidth$", strconv.Itoa(v.Bandwidth))
	}
	if strings.Contains(out, "$Number$") {
		out = strings.ReplaceAll(out, "$Number$", strconv.Itoa(v.Number))
		used.Number++
	}
	if m := numberPaddedRE.FindStringSubmatch(out); m != nil {
		width, err := strconv.Atoi(m[1])
		if err == nil && width > 0 {
			out = strings.ReplaceAll(out, m[0], fmt.Sprintf("%0*d", width, v.Number))
			used.Number++
		}
	}
	if strings.Contains(out, "$Time$") {
		out = strings.ReplaceAll(out, "$Time$", strconv.FormatUint(v.Time, 10))
		used.Time++
	}

	return out, used
}

// audioLanguage extracts the audio language some packagers embed in
// initialization URLs as "as=audio_<lang>)". This is a best-effort
// convention match, not a schema feature; it must only ever be applied to
// initialization-segment URLs.
func audioLanguage(initURL string) (string, bool) {
	m := audioLangRE.FindStringSubmatch(initURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}
