package narrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/ent0n29/narrador/internal/reliability"
)

const (
	defaultOllamaURL   = "http://127.0.0.1:11434"
	defaultOllamaModel = "llama3"
)

// OllamaGateway narrates through a local Ollama server.
type OllamaGateway struct {
	client *api.Client
	model  string
	params Params
}

func NewOllamaGateway(cfg ProviderConfig) (*OllamaGateway, error) {
	base := firstNonEmpty(cfg.BaseURL, defaultOllamaURL)
	// api.NewClient expects the server root, not the OpenAI-compatible /v1 prefix.
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/"), "/v1")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", base, err)
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &OllamaGateway{
		client: api.NewClient(u, httpClient),
		model:  firstNonEmpty(cfg.Model, defaultOllamaModel),
		params: DefaultParams,
	}, nil
}

func (g *OllamaGateway) Name() string { return KindOllama }

func (g *OllamaGateway) Generate(ctx context.Context, in Input) (string, error) {
	req, err := BuildRequest(in, g.params)
	if err != nil {
		return "", newProviderError(g.Name(), reliability.ClassOther, 0, err)
	}

	messages := make([]api.Message, 0, len(req.Prior)+2)
	messages = append(messages, api.Message{Role: "system", Content: req.Instruction})
	for _, m := range req.Prior {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, api.Message{Role: RoleUser, Content: req.NewMessage})

	stream := false
	chatReq := &api.ChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": req.Params.Temperature,
			"top_p":       req.Params.TopP,
			"top_k":       req.Params.TopK,
		},
	}

	var sb strings.Builder
	err = g.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		sb.WriteString(r.Message.Content)
		return nil
	})
	if err != nil {
		class, status := classifyOllamaError(err)
		return "", newProviderError(g.Name(), class, status, err)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", newProviderError(g.Name(), reliability.ClassOther, 0, errors.New("empty completion"))
	}
	return text, nil
}

func classifyOllamaError(err error) (reliability.StatusClass, int) {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode, "")
	}
	var statusErrPtr *api.StatusError
	if errors.As(err, &statusErrPtr) && statusErrPtr != nil {
		return classifyStatus(statusErrPtr.StatusCode, "")
	}
	return reliability.ClassOther, 0
}
