package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                        "http://localhost:11434",
		"ollama:11434":            "http://ollama:11434",
		"http://localhost:11434/": "http://localhost:11434",
		" https://gpu.lan ":       "https://gpu.lan",
	}
	for in, want := range cases {
		if got := normalizeBaseURL(in); got != want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOllamaClientGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "llama3:8b" || body.Stream {
			t.Errorf("unexpected model/stream: %s %v", body.Model, body.Stream)
		}
		if body.Options.Temperature != 0.3 || body.Options.TopP != 0.9 || body.Options.NumPredict != 600 {
			t.Errorf("unexpected options: %+v", body.Options)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "  # Protocol\n\nStep one.\n", "done": true})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3:8b", 5*time.Second)
	text, err := client.Generate(context.Background(), "write", Options{Temperature: 0.3, TopP: 0.9, MaxOutputTokens: 600})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "# Protocol\n\nStep one." {
		t.Fatalf("unexpected text: %q", text)
	}
	if client.Model() != "llama3:8b" {
		t.Fatalf("unexpected model: %s", client.Model())
	}
}

func TestOllamaClientUpstreamFailures(t *testing.T) {
	t.Parallel()

	handlers := map[string]http.HandlerFunc{
		"non-2xx": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		},
		"empty response": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"response": "   ", "done": true})
		},
	}

	for name, handler := range handlers {
		handler := handler
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(handler)
			defer server.Close()

			_, err := NewOllamaClient(server.URL, "m", time.Second).Generate(context.Background(), "p", Options{})
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
		})
	}
}

func TestOllamaClientUnreachable(t *testing.T) {
	t.Parallel()

	_, err := NewOllamaClient("http://127.0.0.1:1", "m", time.Second).Generate(context.Background(), "p", Options{})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestGeneratorFunc(t *testing.T) {
	t.Parallel()

	var g Generator = GeneratorFunc(func(ctx context.Context, prompt string, opts Options) (string, error) {
		return "echo:" + prompt, nil
	})
	text, err := g.Generate(context.Background(), "hi", Options{})
	if err != nil || text != "echo:hi" {
		t.Fatalf("unexpected result %q %v", text, err)
	}
}
