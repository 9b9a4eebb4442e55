package narrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ent0n29/narrador/internal/reliability"
)

type chatPreset struct {
	baseURL string
	model   string
}

var chatPresets = map[string]chatPreset{
	KindGroq:   {baseURL: "https://api.groq.com/openai/v1", model: "llama3-8b-8192"},
	KindXAI:    {baseURL: "https://api.x.ai/v1", model: "grok-4-fast-non-reasoning"},
	KindOpenAI: {baseURL: "https://api.openai.com/v1", model: openai.GPT4oMini},
}

// ChatCompletionsGateway narrates through any OpenAI-compatible chat
// completions endpoint (Groq, xAI, OpenAI).
type ChatCompletionsGateway struct {
	name   string
	client *openai.Client
	model  string
	params Params
}

func NewChatCompletionsGateway(name string, cfg ProviderConfig) (*ChatCompletionsGateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingAPIKey)
	}
	preset := chatPresets[name]

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = firstNonEmpty(cfg.BaseURL, preset.baseURL, config.BaseURL)
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := firstNonEmpty(cfg.Model, preset.model)
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", name)
	}
	return &ChatCompletionsGateway{
		name:   name,
		client: openai.NewClientWithConfig(config),
		model:  model,
		params: DefaultParams,
	}, nil
}

func (g *ChatCompletionsGateway) Name() string { return g.name }

func (g *ChatCompletionsGateway) Generate(ctx context.Context, in Input) (string, error) {
	req, err := BuildRequest(in, g.params)
	if err != nil {
		return "", newProviderError(g.name, reliability.ClassOther, 0, err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Prior)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.Instruction,
	})
	for _, m := range req.Prior {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.NewMessage,
	})

	// Top-k has no field in this wire format.
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
	})
	if err != nil {
		class, status := classifyChatError(err)
		return "", newProviderError(g.name, class, status, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", newProviderError(g.name, reliability.ClassOther, 0, errors.New("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

var statusCodeInMessage = regexp.MustCompile(`status code: (\d{3})`)

func classifyChatError(err error) (reliability.StatusClass, int) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Type)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, "")
	}
	// Non-JSON error bodies only carry the status in the message text.
	if m := statusCodeInMessage.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return classifyStatus(code, "")
	}
	return reliability.ClassOther, 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
