package story

import (
	"encoding/json"
	"regexp"
	"strings"
)

// storyLogBlockPattern matches the first fenced block tagged as json.
var storyLogBlockPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ParseError reports a structured block that could not be decoded.
// It is informational: the narrative is still usable.
type ParseError struct {
	Block string
	Err   error
}

func (e *ParseError) Error() string {
	return "decode story log block: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractStoryLog pulls the journal update out of a raw completion.
//
// Without a block the raw text is returned untouched. When the block does
// not decode, the raw text (block included) is returned with a *ParseError.
// Otherwise the block is cut out and the remaining narrative trimmed.
func ExtractStoryLog(raw string) (string, *StoryLogUpdate, error) {
	loc := storyLogBlockPattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return raw, nil, nil
	}
	body := raw[loc[2]:loc[3]]
	if strings.TrimSpace(body) == "" {
		return raw, nil, nil
	}

	var update StoryLogUpdate
	if err := json.Unmarshal([]byte(body), &update); err != nil {
		return raw, nil, &ParseError{Block: body, Err: err}
	}

	narrative := strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
	return narrative, &update, nil
}
