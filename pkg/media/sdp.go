package media

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// EncodeSDP serializes a session description as the base64-encoded JSON
// blob the backend expects. The blob is opaque to the backend; it is
// forwarded to the avatar service unchanged.
func EncodeSDP(desc *webrtc.SessionDescription) (string, error) {
	if desc == nil {
		return "", fmt.Errorf("media: nil session description")
	}
	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("media: marshal sdp: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSDP parses a base64-encoded JSON session description.
func DecodeSDP(encoded string) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return desc, fmt.Errorf("media: decode sdp base64: %w", err)
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, fmt.Errorf("media: unmarshal sdp: %w", err)
	}
	return desc, nil
}
