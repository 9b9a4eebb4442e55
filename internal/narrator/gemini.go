package narrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/ent0n29/narrador/internal/reliability"
)

const defaultGeminiModel = "gemini-2.5-pro"

// GeminiGateway narrates through the Gemini API.
type GeminiGateway struct {
	client *genai.Client
	model  string
	params Params
}

func NewGeminiGateway(ctx context.Context, cfg ProviderConfig) (*GeminiGateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGateway{client: client, model: model, params: DefaultParams}, nil
}

func (g *GeminiGateway) Name() string { return KindGemini }

func (g *GeminiGateway) Generate(ctx context.Context, in Input) (string, error) {
	req, err := BuildRequest(in, g.params)
	if err != nil {
		return "", newProviderError(g.Name(), reliability.ClassOther, 0, err)
	}

	contents := make([]*genai.Content, 0, len(req.Prior)+1)
	for _, m := range req.Prior {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.NewMessage, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Instruction, genai.RoleUser),
		Temperature:       genai.Ptr(req.Params.Temperature),
		TopP:              genai.Ptr(req.Params.TopP),
		TopK:              genai.Ptr(float32(req.Params.TopK)),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		class, status := classifyGeminiError(err)
		return "", newProviderError(g.Name(), class, status, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", newProviderError(g.Name(), reliability.ClassOther, 0, errors.New("empty completion"))
	}
	return text, nil
}

func classifyGeminiError(err error) (reliability.StatusClass, int) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, apiErr.Status)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyStatus(apiErrPtr.Code, apiErrPtr.Status)
	}
	return reliability.ClassOther, 0
}

// classifyStatus prefers the HTTP code and falls back to the status name.
func classifyStatus(code int, name string) (reliability.StatusClass, int) {
	if class := reliability.ClassifyHTTPStatus(code); class != reliability.ClassOther {
		return class, code
	}
	return reliability.ClassifyStatusName(name), code
}
