package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
)

// triggerReconnect runs the reconnect guard and, if every condition
// holds, moves the session to Reconnecting and kicks off the rebuild.
// The guard requires all of: auto-reconnect enabled, not closed by the
// user, not already reconnecting, and a user interaction within the
// idle bound. Triggers arriving before the settle deadline are noise
// from the previous epoch and are dropped.
func (s *Session) triggerReconnect(reason string) {
	s.mu.Lock()
	switch {
	case !s.cfg.AutoReconnect:
		log.Debug("reconnect suppressed: auto-reconnect disabled", "reason", reason)
		s.mu.Unlock()
		return
	case s.userClosed:
		log.Debug("reconnect suppressed: session closed by user", "reason", reason)
		s.mu.Unlock()
		return
	case s.reconnecting:
		log.Debug("reconnect suppressed: already reconnecting", "reason", reason)
		s.mu.Unlock()
		return
	case time.Since(s.lastInteraction) >= idleSuppress:
		log.Info("reconnect suppressed: user idle", "reason", reason,
			"idle", time.Since(s.lastInteraction).Round(time.Second).String())
		s.mu.Unlock()
		return
	case !s.settledAt.IsZero() && time.Now().Before(s.settledAt):
		log.Debug("reconnect suppressed: session still settling", "reason", reason)
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.setStateLocked(StateReconnecting)
	s.mu.Unlock()

	log.Info("reconnecting session", "session", s.id, "reason", reason)
	go s.reconnect()
}

// reconnect tears down the old media epoch and negotiates a new one.
// The persistent transport is reused when its handshake is still up.
// Speech capture restarts with the media session. A failed negotiation
// ends the attempt: the error is surfaced and the user retries
// manually.
func (s *Session) reconnect() {
	s.mu.Lock()
	old := s.media
	oldCancel := s.epochCancel
	s.media = nil
	s.epochCancel = nil
	runCtx := s.runCtx
	s.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if old != nil {
		old.DetachHandlers()
		if err := old.Close(); err != nil {
			log.Debug("stale media close", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(runCtx, 30*time.Second)
	defer cancel()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	if !s.channel.Connected() {
		if err := s.channel.Connect(ctx, s.id); err != nil {
			s.reconnectFailed(fmt.Errorf("session: transport reconnect: %w", err))
			return
		}
	}

	if s.capture != nil {
		if err := s.capture.Stop(); err != nil {
			log.Debug("speech capture stop", "error", err)
		}
		if err := s.capture.Start(runCtx); err != nil {
			log.Warn("speech capture unavailable after reconnect", "error", err)
		}
	}

	sess, err := s.dial(ctx, s.id, true)
	if err != nil {
		s.reconnectFailed(fmt.Errorf("session: media renegotiation: %w", err))
		return
	}
	s.attachMedia(sess)
}

func (s *Session) reconnectFailed(err error) {
	log.Error("reconnect failed", "session", s.id, "error", err)
	s.mu.Lock()
	s.reconnecting = false
	if s.state != StateClosed {
		s.setStateLocked(StateIdle)
	}
	s.mu.Unlock()
	s.surfaceError(err)
}
