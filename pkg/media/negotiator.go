package media

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
)

// ExchangeFunc swaps a base64-encoded local offer for a base64-encoded
// remote answer via the backend's avatar connect endpoint.
type ExchangeFunc func(ctx context.Context, offer string) (string, error)

// Negotiator establishes avatar media sessions.
type Negotiator struct {
	exchange ExchangeFunc
}

// NewNegotiator creates a negotiator that exchanges SDP through the
// given function.
func NewNegotiator(exchange ExchangeFunc) *Negotiator {
	return &Negotiator{exchange: exchange}
}

// Negotiate builds a relay-only offer with one audio and one video
// transceiver, exchanges it with the backend, and returns the live
// session. A failed exchange closes the peer connection and returns an
// error; the caller re-enables manual retry rather than retrying here.
func (n *Negotiator) Negotiate(ctx context.Context, relay Relay) (*Session, error) {
	if relay.URL == "" {
		return nil, ErrNoRelay
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{
			URLs:       []string{relay.URL},
			Username:   relay.Username,
			Credential: relay.Credential,
		}},
		// All traffic goes through the relay; no peer-to-peer fallback.
		ICETransportPolicy: webrtc.ICETransportPolicyRelay,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create peer connection: %v", ErrNegotiationFailed, err)
	}

	sess := newSession(pc)

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("%w: add %s transceiver: %v", ErrNegotiationFailed, kind, err)
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Debug("inbound track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			go sess.readVideoTrack(track)
		case webrtc.RTPCodecTypeAudio:
			go sess.readAudioTrack(track)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			ev, ok := decodeEvent(string(msg.Data))
			if !ok {
				log.Debug("ignoring unknown subchannel event", "raw", string(msg.Data))
				return
			}
			sess.emit(ev)
		})
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Debug("ice state", "state", state.String())
		sess.setICEState(state)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("%w: create offer: %v", ErrNegotiationFailed, err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("%w: set local description: %v", ErrNegotiationFailed, err)
	}

	// Finalize on gathering completion or the timeout, whichever comes
	// first.
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		log.Debug("ice gathering timed out, proceeding with partial candidates")
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	encoded, err := EncodeSDP(pc.LocalDescription())
	if err != nil {
		pc.Close()
		return nil, err
	}

	answerB64, err := n.exchange(ctx, encoded)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("%w: exchange: %v", ErrNegotiationFailed, err)
	}

	answer, err := DecodeSDP(answerB64)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("%w: set remote description: %v", ErrNegotiationFailed, err)
	}

	return sess, nil
}
