package narrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ent0n29/narrador/internal/reliability"
	"github.com/ent0n29/narrador/internal/story"
)

type capturedChat struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestChatCompletionsGatewaySendsInstructionAndHistory(t *testing.T) {
	var got capturedChat
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"llama3-8b-8192","choices":[{"index":0,"message":{"role":"assistant","content":"Você acorda numa cela."},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	g, err := NewChatCompletionsGateway(KindGroq, ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	in := Input{
		History: []story.Turn{
			{Role: story.RolePlayer, Text: "Oi", ID: "1"},
			{Role: story.RoleNarrator, Text: "Olá", ID: "2"},
			{Role: story.RolePlayer, Text: "Fujo", ID: "3"},
		},
		Log: story.NewStoryLog(),
	}
	text, err := g.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Você acorda numa cela.", text)

	assert.Equal(t, "llama3-8b-8192", got.Model)
	assert.InDelta(t, 0.8, got.Temperature, 1e-6)
	assert.InDelta(t, 0.9, got.TopP, 1e-6)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, "You are a talented"))
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "Fujo", got.Messages[3].Content)
}

func TestChatCompletionsGatewayClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		want   reliability.StatusClass
	}{
		{http.StatusTooManyRequests, reliability.ClassRateLimited},
		{http.StatusServiceUnavailable, reliability.ClassUnavailable},
		{http.StatusNotFound, reliability.ClassNotFound},
		{http.StatusUnauthorized, reliability.ClassOther},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			fmt.Fprint(w, `{"error":{"message":"falhou","type":"error"}}`)
		}))

		g, err := NewChatCompletionsGateway(KindXAI, ProviderConfig{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = g.Generate(context.Background(), testInput())
		srv.Close()

		var perr *ProviderError
		require.True(t, errors.As(err, &perr), "status %d", tc.status)
		assert.Equal(t, tc.want, perr.Class, "status %d", tc.status)
		assert.Equal(t, KindXAI, perr.Provider)
	}
}

func TestChatCompletionsGatewayRequiresKey(t *testing.T) {
	_, err := NewChatCompletionsGateway(KindGroq, ProviderConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClassifyChatErrorFromMessage(t *testing.T) {
	class, status := classifyChatError(errors.New("error, status code: 502, status: 502 Bad Gateway, message: upstream"))
	assert.Equal(t, reliability.ClassUnavailable, class)
	assert.Equal(t, 502, status)
}

func TestClassifyGeminiError(t *testing.T) {
	class, status := classifyGeminiError(genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"})
	assert.Equal(t, reliability.ClassRateLimited, class)
	assert.Equal(t, 429, status)

	class, _ = classifyGeminiError(fmt.Errorf("wrapped: %w", genai.APIError{Status: "UNAVAILABLE"}))
	assert.Equal(t, reliability.ClassUnavailable, class)

	class, _ = classifyGeminiError(genai.APIError{Code: 403, Status: "PERMISSION_DENIED"})
	assert.Equal(t, reliability.ClassOther, class)

	class, _ = classifyGeminiError(errors.New("connection reset"))
	assert.Equal(t, reliability.ClassOther, class)
}

func TestClassifyOllamaError(t *testing.T) {
	class, status := classifyOllamaError(api.StatusError{StatusCode: 404, ErrorMessage: "model not found"})
	assert.Equal(t, reliability.ClassNotFound, class)
	assert.Equal(t, 404, status)

	class, _ = classifyOllamaError(errors.New("boom"))
	assert.Equal(t, reliability.ClassOther, class)
}

func TestOllamaGatewayChat(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"llama3","message":{"role":"assistant","content":"O vento uiva."},"done":true}`)
	}))
	defer srv.Close()

	g, err := NewOllamaGateway(ProviderConfig{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "O vento uiva.", text)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Eu sou um ladino", got.Messages[1].Content)
	assert.EqualValues(t, 40, got.Options["top_k"])
}

func TestNewGatewayKinds(t *testing.T) {
	g, err := NewGateway(context.Background(), ProviderConfig{Kind: "mock"})
	require.NoError(t, err)
	assert.Equal(t, KindMock, g.Name())

	_, err = NewGateway(context.Background(), ProviderConfig{Kind: "gemini"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewGateway(context.Background(), ProviderConfig{Kind: "claude"})
	assert.Error(t, err)
}

func TestMockGatewayOpeningCarriesStoryLog(t *testing.T) {
	text, err := NewMockGateway().Generate(context.Background(), testInput())
	require.NoError(t, err)

	narrative, update, err := story.ExtractStoryLog(text)
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Contains(t, narrative, "Eu sou um ladino")
}
