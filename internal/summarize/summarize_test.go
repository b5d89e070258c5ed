package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"podcast-digest/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(models.SummaryRequest{
		Title:       "The answer",
		PublishedAt: time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC),
		Transcript:  "  hello world  ",
	})

	assert.Contains(t, prompt, "3-bullet point summary")
	assert.Contains(t, prompt, "Title: The answer\n")
	assert.Contains(t, prompt, "Published: 2024-01-01\n")
	assert.Contains(t, prompt, "Transcript:\nhello world\n")
	assert.NotContains(t, prompt, "[truncated]")
}

func TestBuildPrompt_TruncatesTranscript(t *testing.T) {
	long := strings.Repeat("é", MaxTranscriptChars+500)
	prompt := BuildPrompt(models.SummaryRequest{Title: "Long", Transcript: long})

	assert.Contains(t, prompt, strings.Repeat("é", MaxTranscriptChars)+"... [truncated]")
	assert.NotContains(t, prompt, strings.Repeat("é", MaxTranscriptChars+1))
	assert.NotContains(t, prompt, "Published:")
}

func TestClaudeSummarize(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body.Model)
		if len(body.Messages) > 0 && len(body.Messages[0].Content) > 0 {
			gotPrompt = body.Messages[0].Content[0].Text
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "- one\n- two\n- three\n"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c := NewClaude("test-key", "claude-test", 5*time.Second, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	summary, err := c.Summarize(context.Background(), models.SummaryRequest{Title: "The answer", Transcript: "hello world"})
	require.NoError(t, err)
	assert.Equal(t, "- one\n- two\n- three", summary)
	assert.Contains(t, gotPrompt, "hello world")
}

func TestClaudeSummarize_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	c := NewClaude("test-key", "", time.Second, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := c.Summarize(context.Background(), models.SummaryRequest{Title: "x", Transcript: "y"})
	assert.ErrorContains(t, err, "Claude API call failed")
}

func withBaseURL(url string) func(*genai.ClientConfig) {
	return func(cc *genai.ClientConfig) {
		cc.HTTPOptions.BaseURL = url
	}
}

func TestGeminiSummarize(t *testing.T) {
	var gotPrompt, gotSystem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))

		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
			SystemInstruction struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
			gotPrompt = body.Contents[0].Parts[0].Text
		}
		if len(body.SystemInstruction.Parts) > 0 {
			gotSystem = body.SystemInstruction.Parts[0].Text
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "- one\n- two\n- three\n"}]},
				"finishReason": "STOP"
			}]
		}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), "test-key", "gemini-test", 5*time.Second, withBaseURL(srv.URL))
	require.NoError(t, err)
	summary, err := g.Summarize(context.Background(), models.SummaryRequest{Title: "The answer", Transcript: "hello world"})
	require.NoError(t, err)
	assert.Equal(t, "- one\n- two\n- three", summary)
	assert.Contains(t, gotPrompt, "hello world")
	assert.Equal(t, systemPrompt, gotSystem)
}

func TestGeminiSummarize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api error", http.StatusBadRequest, `{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`, "Gemini API call failed"},
		{"empty response", http.StatusOK, `{"candidates":[]}`, "no response generated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g, err := NewGemini(context.Background(), "test-key", "gemini-test", time.Second, withBaseURL(srv.URL))
			require.NoError(t, err)
			_, err = g.Summarize(context.Background(), models.SummaryRequest{Title: "x", Transcript: "y"})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderAnthropic})
	assert.ErrorContains(t, err, "ANTHROPIC_API_KEY")

	_, err = New(context.Background(), Config{Provider: ProviderGemini})
	assert.ErrorContains(t, err, "GEMINI_API_KEY")

	_, err = New(context.Background(), Config{Provider: "openai"})
	assert.ErrorContains(t, err, "unknown summarizer")

	s, err := New(context.Background(), Config{Provider: ProviderAnthropic, AnthropicKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Claude{}, s)
}
