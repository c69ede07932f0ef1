package readiness

import (
	"regexp"
	"strings"
	"time"
)

// PaneState is the pane-change inference result, spec §4.3.2.
type PaneState string

const (
	PaneWorking    PaneState = "working"
	PaneWaiting    PaneState = "waiting"
	PanePermission PaneState = "permission"
)

// PaneCacheState mirrors spec §3's PaneCacheState exactly.
type PaneCacheState struct {
	Content        string
	Width          int
	Height         int
	LastChanged    time.Time
	HasEverChanged bool
}

var (
	decorativeLineRe = regexp.MustCompile(`^[─━═│┃┆┇┊┋╌╍\s]+$`)
	timerParenRe     = regexp.MustCompile(`\(\d+s[^)]*\)`)
	uiGlyphRe        = regexp.MustCompile(`[•❯⏵⏺↵]`)
	statusMetaReList = []*regexp.Regexp{
		regexp.MustCompile(`(?i)context left`),
		regexp.MustCompile(`(?i)background terminal running`),
		regexp.MustCompile(`(?i)for shortcuts`),
		regexp.MustCompile(`(?i)/ps to view`),
		regexp.MustCompile(`(?i)esc to interrupt`),
	}

	permMenuRe     = regexp.MustCompile(`(?i)❯\s*1\.[\s\S]{0,200}?Esc to cancel`)
	permQuestionRe = regexp.MustCompile(`(?i)do you want to (proceed|continue|allow|run)\?`)
	permSessionRe  = regexp.MustCompile(`(?i)yes,?\s*(for|during) this session`)
	permAllowDeny  = regexp.MustCompile(`(?i)\[allow\][\s\S]{0,40}?\[deny\]`)
	permYesNoRe    = regexp.MustCompile(`(?i)\?\s*\[y\s*/\s*n\]`)
)

// normalizeLines strips decorative chrome from the trailing lines of a
// pane snapshot so resize-induced rewraps don't look like new content.
func normalizeLines(content string) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > 20 {
		lines = lines[len(lines)-20:]
	}
	var out []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || decorativeLineRe.MatchString(l) {
			continue
		}
		for _, re := range statusMetaReList {
			l = re.ReplaceAllString(l, "")
		}
		l = timerParenRe.ReplaceAllString(l, "")
		l = uiGlyphRe.ReplaceAllString(l, "")
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func tokenSet(lines []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, l := range lines {
		for _, tok := range strings.Fields(l) {
			set[tok] = struct{}{}
		}
	}
	return set
}

// tokenOverlapRatio is |intersection| / min(|a|, |b|), the denominator the
// spec specifies ("by min cardinality").
func tokenOverlapRatio(a, b map[string]struct{}) (ratio float64, minCard int) {
	minCard = len(a)
	if len(b) < minCard {
		minCard = len(b)
	}
	if minCard == 0 {
		if len(a) == 0 && len(b) == 0 {
			return 1, 0
		}
		return 0, 0
	}
	inter := 0
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for tok := range small {
		if _, ok := big[tok]; ok {
			inter++
		}
	}
	return float64(inter) / float64(minCard), minCard
}

func hasPermissionPrompt(content string) bool {
	lines := strings.Split(content, "\n")
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	joined := strings.Join(lines, "\n")
	return permMenuRe.MatchString(joined) ||
		permQuestionRe.MatchString(joined) ||
		permSessionRe.MatchString(joined) ||
		permAllowDeny.MatchString(joined) ||
		permYesNoRe.MatchString(joined)
}

// meaningfullyChanged decides whether a new pane snapshot represents real
// output versus a resize-induced rewrap of the same content, per spec
// §4.3.2's token-overlap rule.
func meaningfullyChanged(prev PaneCacheState, content string, width, height int) bool {
	if prev.Width != width || prev.Height != height {
		prevTokens := tokenSet(normalizeLines(prev.Content))
		newTokens := tokenSet(normalizeLines(content))
		ratio, minCard := tokenOverlapRatio(prevTokens, newTokens)
		return ratio < 0.9 || minCard < 8
	}
	return content != prev.Content
}

// Evaluate runs one step of the pane-change state machine given the
// previous cache (nil if this is the first observation) and a fresh
// snapshot. It returns the inferred state, the updated cache to store,
// and how long to wait before the next check.
func Evaluate(prev *PaneCacheState, content string, width, height int, grace time.Duration, now time.Time) (PaneState, PaneCacheState, time.Duration) {
	permission := hasPermissionPrompt(content)

	if prev == nil {
		if !permission {
			return PaneWaiting, PaneCacheState{Content: content, Width: width, Height: height, LastChanged: now}, grace
		}
		// No baseline to diff against, but the bullet order still runs the
		// content-changed check first (vacuously false) before permission.
		return PanePermission, PaneCacheState{Content: content, Width: width, Height: height, LastChanged: now}, grace
	}

	changed := meaningfullyChanged(*prev, content, width, height)

	if changed {
		next := PaneCacheState{
			Content:        content,
			Width:          width,
			Height:         height,
			LastChanged:    now,
			HasEverChanged: true,
		}
		wait := grace
		if wait < 100*time.Millisecond {
			wait = 100 * time.Millisecond
		}
		return PaneWorking, next, wait
	}

	unchanged := PaneCacheState{
		Content:        content,
		Width:          width,
		Height:         height,
		LastChanged:    prev.LastChanged,
		HasEverChanged: prev.HasEverChanged,
	}

	if permission {
		return PanePermission, unchanged, grace
	}

	elapsed := now.Sub(prev.LastChanged)
	if elapsed < grace && prev.HasEverChanged {
		return PaneWorking, unchanged, grace - elapsed
	}

	return PaneWaiting, unchanged, grace
}
