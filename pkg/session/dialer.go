package session

import (
	"context"
	"fmt"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/audioio"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/backend"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/media"
)

// AvatarDialer builds a MediaDialer over the real backend: fetch relay
// credentials, negotiate a relay-only peer connection, and exchange the
// offer through the avatar connect endpoint. opts selects the avatar
// character, style, and voice; the Reconnecting flag is set per dial.
// A non-nil sink receives the decoded avatar audio for local playback;
// the handler is re-attached on every dial so reconnects keep playing.
func AvatarDialer(client *backend.Client, opts backend.AvatarOptions, sink audioio.Sink) MediaDialer {
	return func(ctx context.Context, sessionID string, reconnecting bool) (MediaSession, error) {
		creds, err := client.RelayCredentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("session: relay credentials: %w", err)
		}

		dialOpts := opts
		dialOpts.Reconnecting = reconnecting
		neg := media.NewNegotiator(func(ctx context.Context, offer string) (string, error) {
			return client.ConnectAvatar(ctx, sessionID, offer, dialOpts)
		})

		sess, err := neg.Negotiate(ctx, media.Relay{
			URL:        creds.URL,
			Username:   creds.Username,
			Credential: creds.Credential,
		})
		if err != nil {
			return nil, err
		}
		if sink != nil {
			sess.OnAudio(func(chunk audioio.Chunk) {
				// The dial context is long gone by playback time.
				if err := sink.Write(context.Background(), chunk); err != nil {
					log.Debug("audio playback write", "error", err)
				}
			})
		}
		return sess, nil
	}
}
