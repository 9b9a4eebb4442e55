package story

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDirective(t *testing.T) {
	display, d := ExtractDirective("O guarda te encara. [ROLL_D20:  convencer o guarda ]")
	require.NotNil(t, d)
	assert.Equal(t, "convencer o guarda", d.Reason)
	assert.Equal(t, "O guarda te encara. ", display)
}

func TestExtractDirectiveTruncatesAtFirstMarker(t *testing.T) {
	cases := []string{
		"Antes [ROLL_D20:pular] depois do token",
		"Antes [ROLL_D20:pular] meio [ROLL_D20:correr] fim",
		"[ROLL_D20:abrir a porta]",
	}
	for _, raw := range cases {
		display, d := ExtractDirective(raw)
		require.NotNil(t, d, raw)
		idx := strings.Index(raw, DirectiveMarker)
		assert.Equal(t, raw[:idx], display, raw)
	}

	_, d := ExtractDirective("Antes [ROLL_D20:pular] meio [ROLL_D20:correr] fim")
	assert.Equal(t, "pular", d.Reason)
}

func TestExtractDirectiveAbsent(t *testing.T) {
	display, d := ExtractDirective("Nada acontece.")
	assert.Nil(t, d)
	assert.Equal(t, "Nada acontece.", display)
}

func TestExtractDirectiveMultiline(t *testing.T) {
	display, d := ExtractDirective("Texto [ROLL_D20:quebra\nde linha]")
	assert.Nil(t, d)
	assert.Equal(t, "Texto ", display)
}

func TestExportTranscriptStripsDirectives(t *testing.T) {
	turns := []Turn{
		{Role: RolePlayer, Text: "Oi", ID: "1"},
		{Role: RoleNarrator, Text: "Olá viajante [ROLL_D20:reagir]", ID: "2"},
	}
	out := ExportTranscript(turns)

	assert.Contains(t, out, "Oi")
	assert.Contains(t, out, "Olá viajante")
	assert.NotContains(t, out, "[ROLL_D20:")
	assert.Equal(t, "Você:\nOi\n\n---\n\nNarrador:\nOlá viajante\n", out)
}
