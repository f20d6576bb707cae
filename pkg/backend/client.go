// Package backend provides clients for the avatar demo backend: speech
// token issuance, ICE relay credentials, avatar SDP exchange, chat
// streaming, and the synthesizer status probe. The backend itself is a
// vendor-facing proxy; nothing here talks to Azure directly.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/httpc"
)

// speechTokenLifetime is how long an issued token is trusted locally.
// Azure speech tokens expire after 10 minutes; refresh a minute early.
const speechTokenLifetime = 9 * time.Minute

// SpeechToken is a bearer token for the speech recognizer.
type SpeechToken struct {
	Token  string
	Region string

	issuedAt time.Time
}

// Expired reports whether the token is past its refresh horizon.
func (t SpeechToken) Expired() bool {
	return time.Since(t.issuedAt) >= speechTokenLifetime
}

// RelayCredentials describe the TURN relay for media negotiation.
type RelayCredentials struct {
	URL        string `json:"url"`
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

// AvatarOptions select the avatar appearance and voice, sent as headers
// on the connect request.
type AvatarOptions struct {
	Character    string
	Style        string
	Voice        string
	Reconnecting bool
}

// Health is the deployment health probe response.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Client talks to the avatar backend.
type Client struct {
	baseURL string
	http    *http.Client

	tokenMu     sync.Mutex
	cachedToken *SpeechToken
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoServerURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpc.Client,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SpeechToken returns a bearer token for the speech recognizer, cached
// until its refresh horizon.
func (c *Client) SpeechToken(ctx context.Context) (SpeechToken, error) {
	c.tokenMu.Lock()
	if c.cachedToken != nil && !c.cachedToken.Expired() {
		tok := *c.cachedToken
		c.tokenMu.Unlock()
		return tok, nil
	}
	c.tokenMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/getSpeechToken", nil)
	if err != nil {
		return SpeechToken{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return SpeechToken{}, fmt.Errorf("backend: speech token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SpeechToken{}, c.apiError("getSpeechToken", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SpeechToken{}, fmt.Errorf("backend: read speech token: %w", err)
	}

	tok := SpeechToken{
		Token:    strings.TrimSpace(string(body)),
		Region:   resp.Header.Get("SpeechRegion"),
		issuedAt: time.Now(),
	}

	c.tokenMu.Lock()
	c.cachedToken = &tok
	c.tokenMu.Unlock()
	return tok, nil
}

// RelayCredentials fetches TURN relay credentials for media negotiation.
func (c *Client) RelayCredentials(ctx context.Context) (RelayCredentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/getIceToken", nil)
	if err != nil {
		return RelayCredentials{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return RelayCredentials{}, fmt.Errorf("backend: ice token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RelayCredentials{}, c.apiError("getIceToken", resp)
	}

	var creds RelayCredentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return RelayCredentials{}, fmt.Errorf("backend: decode ice token: %w", err)
	}
	return creds, nil
}

// ConnectAvatar exchanges a base64-encoded local SDP offer for a
// base64-encoded remote answer. The offer is an opaque blob to the
// backend; avatar selection travels in headers.
func (c *Client) ConnectAvatar(ctx context.Context, sessionID, offer string, opts AvatarOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/connectAvatar", strings.NewReader(offer))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("ClientSessionId", sessionID)
	req.Header.Set("AvatarCharacter", opts.Character)
	req.Header.Set("AvatarStyle", opts.Style)
	req.Header.Set("TtsVoice", opts.Voice)
	if opts.Reconnecting {
		req.Header.Set("Reconnect", "true")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend: connect avatar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.apiError("connectAvatar", resp)
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("backend: read avatar answer: %w", err)
	}
	return strings.TrimSpace(string(answer)), nil
}

// DisconnectAvatar notifies the backend that the session released its
// avatar. Best effort: callers typically ignore the error on shutdown.
func (c *Client) DisconnectAvatar(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/disconnectAvatar", nil)
	if err != nil {
		return err
	}
	req.Header.Set("ClientSessionId", sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: disconnect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError("disconnectAvatar", resp)
	}
	return nil
}

// SynthesizerConnected polls the status endpoint.
func (c *Client) SynthesizerConnected(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/getStatus", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("backend: status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, c.apiError("getStatus", resp)
	}

	var status struct {
		SpeechSynthesizerConnected bool `json:"speechSynthesizerConnected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("backend: decode status: %w", err)
	}
	return status.SpeechSynthesizerConnected, nil
}

// Health fetches the deployment health probe.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("backend: health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{}, c.apiError("health", resp)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("backend: decode health: %w", err)
	}
	return h, nil
}

// apiError converts a non-2xx response into an APIError, consuming a
// bounded amount of the body for the message.
func (c *Client) apiError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
		Message:    strings.TrimSpace(string(body)),
	}
}
