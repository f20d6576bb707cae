package backend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ChatStream yields assistant reply text as it is generated. Chunks may
// carry inline latency tags; stripping them is the renderer's job.
type ChatStream interface {
	// Recv returns the next chunk of reply text. Returns io.EOF when the
	// reply is complete.
	Recv() (string, error)

	// Close releases the underlying response body.
	Close() error
}

// StreamChat sends a user query and returns the streamed reply.
func (c *Client) StreamChat(ctx context.Context, sessionID, query string) (ChatStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat", strings.NewReader(query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("ClientSessionId", sessionID)

	// The shared client's timeout is too short for a full streamed
	// reply; rely on the caller's context instead.
	client := &http.Client{Transport: c.http.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: chat request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.apiError("chat", resp)
	}

	return &chatStream{
		reader: bufio.NewReader(resp.Body),
		body:   resp.Body,
	}, nil
}

// chatStream implements ChatStream over a chunked plain-text response.
type chatStream struct {
	reader *bufio.Reader
	body   io.ReadCloser
	closed bool
}

// Recv returns the next chunk of reply text.
func (s *chatStream) Recv() (string, error) {
	if s.closed {
		return "", ErrStreamClosed
	}

	buf := make([]byte, 4096)
	n, err := s.reader.Read(buf)
	if n > 0 {
		return string(buf[:n]), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	if err != nil {
		return "", fmt.Errorf("backend: read chat stream: %w", err)
	}
	return "", nil
}

// Close releases the response body.
func (s *chatStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
