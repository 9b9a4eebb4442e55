package story

import "strings"

const transcriptSeparator = "\n---\n\n"

// ExportTranscript renders turns as plain text, one block per turn, with
// roll directives removed.
func ExportTranscript(turns []Turn) string {
	blocks := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "Narrador"
		if t.Role == RolePlayer {
			speaker = "Você"
		}
		blocks = append(blocks, speaker+":\n"+StripDirectives(t.Text)+"\n")
	}
	return strings.Join(blocks, transcriptSeparator)
}
