package session

import (
	"context"
	"time"
)

// probeLiveness watches the media playback clock while the session is
// active. Two samples taken probePeriod apart that show no progress
// mean the remote pipeline hung without closing anything, which is the
// one failure mode neither the transport nor the data channel reports.
//
// The probe fires at most once: a detected hang triggers the reconnect
// path and ends this loop. The replacement epoch starts its own probe,
// so overlapping probes can never double-trigger on the same hang.
//
// Known limitation: a deliberately frozen frame with a live pipeline is
// indistinguishable from a hang and will trip the probe.
func (s *Session) probeLiveness(ctx context.Context, sess MediaSession) {
	ticker := time.NewTicker(s.probeEvery)
	defer ticker.Stop()

	var (
		last    time.Duration
		haveRef bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		active := s.state == StateActive || s.state == StateSpeaking
		settled := !s.settledAt.IsZero() && time.Now().After(s.settledAt)
		s.mu.Unlock()
		if !active || !settled {
			haveRef = false
			continue
		}

		pos := sess.PlaybackPosition()
		if haveRef && pos == last {
			s.triggerReconnect("playback clock stalled")
			return
		}
		last = pos
		haveRef = true
	}
}
