package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Generate(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OllamaResponse{Response: "Hello scanned world", Done: true})
	}))
	defer server.Close()

	c := NewOllamaClient(OllamaConfig{Endpoint: server.URL + "/", Model: "llava"})
	defer c.Close()

	reply, err := c.Generate(context.Background(), &Request{
		Instruction:     DefaultInstruction,
		Image:           testImage(),
		MaxOutputTokens: 4096,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello scanned world", ExtractText(reply, DefaultStrategies))

	assert.Equal(t, "llava", got.Model)
	assert.Equal(t, DefaultInstruction, got.Prompt)
	assert.Equal(t, []string{testImage().Base64()}, got.Images)
	assert.False(t, got.Stream)
	assert.EqualValues(t, 4096, got.Options["num_predict"])
}

func TestOllamaClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		errMsg  string
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
			errMsg: "unexpected status code 500",
		},
		{
			name: "error field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(OllamaResponse{Error: "out of memory"})
			},
			errMsg: "ollama error: out of memory",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			errMsg: "failed to decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			c := NewOllamaClient(OllamaConfig{Endpoint: server.URL})
			_, err := c.Generate(context.Background(), &Request{Image: testImage()})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
