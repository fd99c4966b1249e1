package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithEndpoint(url),
		WithDeployment("kids-chat"),
		WithAPIKey("test-key"),
		WithRetryDelay(time.Millisecond),
	}
	c, err := NewClient(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientRespond(t *testing.T) {
	var got completionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/openai/deployments/kids-chat/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if v := r.URL.Query().Get("api-version"); v != DefaultAPIVersion {
			t.Errorf("api-version = %q", v)
		}
		if key := r.Header.Get("api-key"); key != "test-key" {
			t.Errorf("api-key header = %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Hi there, friend!  "}}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/")
	reply, err := c.Respond(context.Background(), "The child raised their hand. How should I respond?", DefaultPersona, 0)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply != "Hi there, friend!" {
		t.Errorf("reply = %q", reply)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != DefaultPersona {
		t.Errorf("system message = %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" {
		t.Errorf("user message role = %q", got.Messages[1].Role)
	}
	if got.MaxTokens != DefaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", got.MaxTokens, DefaultMaxTokens)
	}
}

func TestClientRespond_BearerAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithAuthHeader("Authorization"))
	if _, err := c.Respond(context.Background(), "hi", "", 10); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
}

func TestClientRespond_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"boom","code":"internal"}}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("error = %v, want *APIError", err)
				}
				if apiErr.StatusCode != 500 || apiErr.Message != "boom" || apiErr.Code != "internal" {
					t.Errorf("APIError = %+v", apiErr)
				}
				if !apiErr.IsRetryable() {
					t.Error("500 should be retryable")
				}
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `not json`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() {
					t.Fatalf("error = %v, want unauthorized APIError", err)
				}
				if apiErr.Message != "not json" {
					t.Errorf("message = %q", apiErr.Message)
				}
			},
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"choices":[]}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrEmptyResponse) {
					t.Errorf("error = %v, want ErrEmptyResponse", err)
				}
			},
		},
		{
			name:   "blank content",
			status: http.StatusOK,
			body:   `{"choices":[{"message":{"content":"   "}}]}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrEmptyResponse) {
					t.Errorf("error = %v, want ErrEmptyResponse", err)
				}
			},
		},
		{
			name:   "undecodable body",
			status: http.StatusOK,
			body:   `{"choices":`,
			check: func(t *testing.T, err error) {
				var reqErr *RequestError
				if !errors.As(err, &reqErr) || reqErr.Op != "decode response" {
					t.Errorf("error = %v, want decode RequestError", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, WithMaxRetries(0))
			reply, err := c.Respond(context.Background(), "hello", DefaultPersona, 0)
			if err == nil {
				t.Fatalf("Respond() = %q, want error", reply)
			}
			tt.check(t, err)
		})
	}
}

func TestClientRespond_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"second time lucky"}}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	reply, err := c.Respond(context.Background(), "hello", "", 0)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply != "second time lucky" {
		t.Errorf("reply = %q", reply)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestClientRespond_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithMaxRetries(3))
	_, err := c.Respond(context.Background(), "hello", "", 0)
	if StatusCode(err) != http.StatusBadRequest {
		t.Errorf("StatusCode(err) = %d, want 400", StatusCode(err))
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClientRespond_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(t, url, WithMaxRetries(0))
	_, err := c.Respond(context.Background(), "hello", "", 0)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if StatusCode(err) != 0 {
		t.Error("transport failure should carry no status")
	}
}

func TestClientRespond_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, server.URL, WithTimeout(50*time.Millisecond), WithMaxRetries(0))
	if _, err := c.Respond(context.Background(), "hello", "", 0); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNewClient_RequiresSettings(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want error
	}{
		{"no endpoint", []Option{WithDeployment("d"), WithAPIKey("k")}, ErrNoEndpoint},
		{"no deployment", []Option{WithEndpoint("https://x"), WithAPIKey("k")}, ErrNoDeployment},
		{"no key", []Option{WithEndpoint("https://x"), WithDeployment("d")}, ErrNoAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.opts...); !errors.Is(err, tt.want) {
				t.Errorf("NewClient() error = %v, want %v", err, tt.want)
			}
		})
	}
}
