package media

import (
	"errors"
	"io"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"gopkg.in/hraban/opus.v2"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/audioio"
)

const (
	// opusSampleRate is the decode rate for inbound avatar audio.
	opusSampleRate = 48000
	opusChannels   = 2

	// maxOpusFrame is 120ms at 48kHz stereo, the largest opus frame.
	maxOpusFrame = 5760 * opusChannels
)

// readVideoTrack drains inbound video packets. The payload itself is
// not decoded; only the RTP timestamp matters, it drives the playback
// clock the liveness probe samples.
func (s *Session) readVideoTrack(track *webrtc.TrackRemote) {
	clockRate := track.Codec().ClockRate
	for {
		var pkt *rtp.Packet
		var err error
		pkt, _, err = track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.Closed() {
				log.Debug("video track read ended", "error", err)
			}
			return
		}
		s.markVideo(pkt.Timestamp, clockRate)
	}
}

// readAudioTrack decodes inbound opus audio to PCM16 and hands chunks
// to the registered audio handler.
func (s *Session) readAudioTrack(track *webrtc.TrackRemote) {
	if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
		log.Warn("unsupported audio codec, dropping track", "codec", track.Codec().MimeType)
		return
	}

	dec, err := opus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		log.Error("opus decoder init failed", "error", err)
		return
	}

	pcm := make([]int16, maxOpusFrame)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.Closed() {
				log.Debug("audio track read ended", "error", err)
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			log.Debug("opus decode failed", "error", err)
			continue
		}

		samples := make([]int16, n*opusChannels)
		copy(samples, pcm[:n*opusChannels])
		s.emitAudio(audioio.Chunk{
			Samples:    samples,
			SampleRate: opusSampleRate,
			Channels:   opusChannels,
		})
	}
}
