package story

import (
	"regexp"
	"strings"
)

// DirectiveMarker opens an uncertain-outcome token: [ROLL_D20:reason].
const DirectiveMarker = "[ROLL_D20:"

var directivePattern = regexp.MustCompile(`\[ROLL_D20:(.*?)\]`)

// DirectiveRequest asks the player for a d20 roll before the story continues.
type DirectiveRequest struct {
	Reason string `json:"reason"`
}

// ExtractDirective returns the text shown to the player and the first roll
// directive, if any. Everything from the first marker onwards is hidden,
// even narrative that follows the token.
func ExtractDirective(narrative string) (string, *DirectiveRequest) {
	display, _, _ := strings.Cut(narrative, DirectiveMarker)

	m := directivePattern.FindStringSubmatch(narrative)
	if m == nil || m[1] == "" {
		return display, nil
	}
	return display, &DirectiveRequest{Reason: strings.TrimSpace(m[1])}
}

// StripDirectives cuts text at the first directive marker and trims it.
func StripDirectives(text string) string {
	before, _, _ := strings.Cut(text, DirectiveMarker)
	return strings.TrimSpace(before)
}
