package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4.1",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestOpenAIGenerator_SendsSingleUserTurn(t *testing.T) {
	var body map[string]any
	srv := completionServer(t, "intent: shopping\n- {q: \"rice\"}", &body)
	defer srv.Close()

	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1/"})
	text, err := gen.Generate(context.Background(), "the whole instruction")
	require.NoError(t, err)
	assert.Contains(t, text, "intent: shopping")

	assert.Equal(t, "gpt-4.1", body["model"])
	assert.InDelta(t, DefaultTemperature, body["temperature"], 1e-9)
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
}

func TestOpenAIGenerator_ZeroTemperatureIsSent(t *testing.T) {
	var body map[string]any
	srv := completionServer(t, "intent: shopping", &body)
	defer srv.Close()

	zero := 0.0
	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1/", Temperature: &zero})
	_, err := gen.Generate(context.Background(), "prompt")
	require.NoError(t, err)

	temperature, ok := body["temperature"]
	require.True(t, ok, "temperature must be sent")
	assert.InDelta(t, 0.0, temperature, 1e-9)
}

func TestTemperatureOrDefault(t *testing.T) {
	zero, hot := 0.0, 1.2
	assert.Equal(t, DefaultTemperature, temperatureOrDefault(nil))
	assert.Equal(t, 0.0, temperatureOrDefault(&zero))
	assert.Equal(t, 1.2, temperatureOrDefault(&hot))
}

func TestOpenAIGenerator_EmptyCompletion(t *testing.T) {
	srv := completionServer(t, "   ", nil)
	defer srv.Close()

	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1/"})
	_, err := gen.Generate(context.Background(), "prompt")
	assert.True(t, errors.Is(err, ErrEmptyCompletion))
}

func TestOpenAIGenerator_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1/"})
	_, err := gen.Generate(context.Background(), "prompt")
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	var g Func = func(ctx context.Context, prompt string) (string, error) { return prompt + "!", nil }
	out, err := g.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)
}
