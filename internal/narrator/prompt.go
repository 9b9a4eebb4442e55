package narrator

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/ent0n29/narrador/internal/story"
)

//go:embed prompts/instruction.tmpl
var promptFS embed.FS

var instructionTmpl = template.Must(template.ParseFS(promptFS, "prompts/instruction.tmpl"))

// Message roles on the provider wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Params are the sampling parameters sent with every request.
type Params struct {
	Temperature float32
	TopP        float32
	TopK        int
}

// DefaultParams are shared by every provider.
var DefaultParams = Params{Temperature: 0.8, TopP: 0.9, TopK: 40}

// Request is the provider-neutral form of a generation call.
type Request struct {
	Instruction string
	Prior       []Message
	NewMessage  string
	Params      Params
}

var ErrEmptyHistory = errors.New("history has no turns to answer")

type instructionData struct {
	Opening    bool
	HasContext bool
	Context    string
	LogJSON    string
}

// BuildInstruction renders the system instruction for a history.
func BuildInstruction(log story.StoryLog, history []story.Turn, inspiration *string) (string, error) {
	logJSON, err := json.MarshalIndent(log.Clone(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode story log: %w", err)
	}
	data := instructionData{
		Opening: len(history) == 1 && history[0].Role == story.RolePlayer,
		LogJSON: string(logJSON),
	}
	if inspiration != nil && strings.TrimSpace(*inspiration) != "" {
		data.HasContext = true
		data.Context = *inspiration
	}

	var buf bytes.Buffer
	if err := instructionTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render instruction: %w", err)
	}
	return buf.String(), nil
}

// BuildRequest maps an Input onto the provider-neutral request. The welcome
// turn is never sent; the last turn becomes the new message.
func BuildRequest(in Input, params Params) (Request, error) {
	history := story.WithoutWelcome(in.History)
	if len(history) == 0 {
		return Request{}, ErrEmptyHistory
	}
	instruction, err := BuildInstruction(in.Log, history, in.Context)
	if err != nil {
		return Request{}, err
	}

	prior := make([]Message, 0, len(history)-1)
	for _, turn := range history[:len(history)-1] {
		role := RoleUser
		if turn.Role == story.RoleNarrator {
			role = RoleAssistant
		}
		prior = append(prior, Message{Role: role, Content: turn.Text})
	}
	return Request{
		Instruction: instruction,
		Prior:       prior,
		NewMessage:  history[len(history)-1].Text,
		Params:      params,
	}, nil
}
