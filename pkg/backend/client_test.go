package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(""); !errors.Is(err, ErrNoServerURL) {
		t.Fatalf("expected ErrNoServerURL, got %v", err)
	}
}

func TestSpeechTokenCaching(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("SpeechRegion", "westus2")
		io.WriteString(w, "tok-123")
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx := context.Background()
	tok, err := c.SpeechToken(ctx)
	if err != nil {
		t.Fatalf("SpeechToken: %v", err)
	}
	if tok.Token != "tok-123" || tok.Region != "westus2" {
		t.Errorf("unexpected token %+v", tok)
	}

	// Second call should come from cache.
	if _, err := c.SpeechToken(ctx); err != nil {
		t.Fatalf("SpeechToken (cached): %v", err)
	}
	if requests != 1 {
		t.Errorf("expected 1 backend request, got %d", requests)
	}
}

func TestConnectAvatarSendsSelectionHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		io.WriteString(w, "base64-answer")
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	answer, err := c.ConnectAvatar(context.Background(), "s1", "base64-offer", AvatarOptions{
		Character: "lisa", Style: "casual-sitting", Voice: "en-US-AvaMultilingualNeural",
	})
	if err != nil {
		t.Fatalf("ConnectAvatar: %v", err)
	}
	if answer != "base64-answer" {
		t.Errorf("expected answer passthrough, got %q", answer)
	}
	if gotBody != "base64-offer" {
		t.Errorf("expected offer in body, got %q", gotBody)
	}
	if gotHeaders.Get("AvatarCharacter") != "lisa" {
		t.Errorf("missing AvatarCharacter header")
	}
	if gotHeaders.Get("ClientSessionId") != "s1" {
		t.Errorf("missing ClientSessionId header")
	}
	if gotHeaders.Get("Reconnect") != "" {
		t.Errorf("Reconnect header must be absent on first connect")
	}
}

func TestConnectAvatarSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.ConnectAvatar(context.Background(), "s1", "offer", AvatarOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", apiErr.StatusCode)
	}
	if apiErr.Endpoint != "connectAvatar" {
		t.Errorf("expected endpoint connectAvatar, got %s", apiErr.Endpoint)
	}
}

func TestSynthesizerConnected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"speechSynthesizerConnected": true}`)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	connected, err := c.SynthesizerConnected(context.Background())
	if err != nil {
		t.Fatalf("SynthesizerConnected: %v", err)
	}
	if !connected {
		t.Error("expected connected true")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"healthy","service":"avatar-backend"}`)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "healthy" || h.Service != "avatar-backend" {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestStreamChatDeliversChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, "Hello")
		flusher.Flush()
		io.WriteString(w, " world.")
		flusher.Flush()
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	stream, err := c.StreamChat(context.Background(), "s1", "hi")
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		sb.WriteString(chunk)
	}
	if sb.String() != "Hello world." {
		t.Errorf("expected full reply, got %q", sb.String())
	}
}
