package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestClient_Generate(t *testing.T) {
	var gotAuth, gotContentType, gotInputs string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		gotInputs = body.Inputs
		_, _ = w.Write([]byte("image-bytes"))
	})

	client := NewClient([]Model{{Name: "Flux", Path: "/flux", ModelURL: server.URL}}, "secret", 1024)

	data, err := client.Generate(context.Background(), "Flux", "a red fox")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("expected image-bytes, got %q", string(data))
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected application/json, got %q", gotContentType)
	}
	if gotInputs != "a red fox" {
		t.Errorf("expected prompt in inputs, got %q", gotInputs)
	}

	// models are also addressable by path
	if _, err := client.Generate(context.Background(), "/flux", "a red fox"); err != nil {
		t.Fatalf("Generate by path error: %v", err)
	}
}

func TestClient_GenerateErrors(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fail":
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		case "/large":
			_, _ = w.Write(make([]byte, 64))
		case "/empty":
			w.WriteHeader(http.StatusOK)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		}
	})

	client := NewClient([]Model{
		{Name: "fail", ModelURL: server.URL + "/fail"},
		{Name: "large", ModelURL: server.URL + "/large"},
		{Name: "empty", ModelURL: server.URL + "/empty"},
		{Name: "slow", ModelURL: server.URL + "/slow", Timeout: 20 * time.Millisecond},
	}, "", 32)
	ctx := context.Background()

	if _, err := client.Generate(ctx, "fail", "   "); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
	if _, err := client.Generate(ctx, "missing", "prompt"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}

	_, err := client.Generate(ctx, "fail", "prompt")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected StatusError 503, got %v", err)
	}

	if _, err := client.Generate(ctx, "large", "prompt"); !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("expected ErrResponseTooLarge, got %v", err)
	}
	if _, err := client.Generate(ctx, "empty", "prompt"); !errors.Is(err, ErrEmptyResponseBody) {
		t.Errorf("expected ErrEmptyResponseBody, got %v", err)
	}
	if _, err := client.Generate(ctx, "slow", "prompt"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestClient_Models(t *testing.T) {
	models := []Model{{Name: "a", Path: "/a"}, {Name: "b", Path: "/b"}}
	client := NewClient(models, "", 1)

	got := client.Models()
	got[0].Name = "changed"
	if client.Models()[0].Name != "a" {
		t.Fatal("Models must return a copy")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii", "abcdef", 3, "abc..."},
		{"rune boundary", "aé", 2, "a..."},
		{"whole runes", "éé", 2, "é..."},
		{"four byte rune", "a😀b", 3, "a..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.n)
			if got != tt.want {
				t.Fatalf("truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("truncate(%q, %d) produced invalid UTF-8 %q", tt.input, tt.n, got)
			}
		})
	}
}

func TestClient_StatusErrorBodyIsValidUTF8(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		// odd prefix shifts every two byte rune across the cut
		_, _ = w.Write([]byte("x" + strings.Repeat("é", 300)))
	})

	client := NewClient([]Model{{Name: "sd", ModelURL: server.URL}}, "", 1<<20)
	_, err := client.Generate(context.Background(), "sd", "prompt")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if !utf8.ValidString(statusErr.Body) {
		t.Fatalf("status error body is not valid UTF-8: %q", statusErr.Body)
	}
}
