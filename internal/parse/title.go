// Package parse extracts subject and event candidates from clip titles.
package parse

import (
	"fmt"
	"regexp"
	"strings"
)

// Fancam titles follow loose community conventions, e.g.
//
//	[4K] 아이브 장원영 직캠 'Kitsch' (IVE WONGYOUNG Fancam) @음악중심 230325
//
// Extraction is best-effort: no match yields an empty string, never an
// error. False negatives are expected.
var (
	// Optional leading [tag], then "<group> <member> <highlight-keyword>".
	// The group may span several words; the member is a single word.
	subjectPattern = regexp.MustCompile(`(?i)(?:\[[^\]]*\])?\s*([가-힣A-Za-z][가-힣A-Za-z\s]*?)\s+([가-힣A-Za-z]+)\s+(?:직캠|fancam|focus|cam)`)

	// Parenthesized Latin-script "(GROUP MEMBER Fancam)". When present,
	// the Latin group name wins over the positional one.
	latinPairPattern = regexp.MustCompile(`(?i)\(([A-Za-z]+)\s+([A-Za-z]+)\s+(?:fancam|focus|cam)\)`)

	// "@venue" optionally followed by a 6-digit YYMMDD date.
	eventPattern = regexp.MustCompile(`@([가-힣A-Za-z\s]+)\s*(\d{6})?`)
)

// Title extracts a subject candidate ("member (group)") and an event
// label ("venue YYYY-MM-DD") from a raw clip title. Either result may be
// empty when its pattern does not match.
func Title(raw string) (subject, event string) {
	return subjectCandidate(raw), eventLabel(raw)
}

func subjectCandidate(title string) string {
	var group, member string
	if m := subjectPattern.FindStringSubmatch(title); m != nil {
		group = strings.TrimSpace(m[1])
		member = strings.TrimSpace(m[2])
	}
	if m := latinPairPattern.FindStringSubmatch(title); m != nil {
		group = m[1]
		if member == "" {
			member = m[2]
		}
	}
	if member == "" || group == "" {
		return ""
	}
	return fmt.Sprintf("%s (%s)", member, group)
}

func eventLabel(title string) string {
	m := eventPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	venue := strings.TrimSpace(m[1])
	if venue == "" {
		return ""
	}
	if m[2] == "" {
		return venue
	}
	// 6-digit dates are YYMMDD in the 2000s.
	date := m[2]
	return fmt.Sprintf("%s 20%s-%s-%s", venue, date[:2], date[2:4], date[4:6])
}
