// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package playground

import (
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/plug/pkg/errutil"
	"github.com/holomush/plug/pkg/sdk"
)

// State is the state of one handshake attempt.
type State int

// Handshake states.
const (
	StateIdle State = iota
	StateArmed
	StateSent
	StateAccepted
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateSent:
		return "sent"
	case StateAccepted:
		return "accepted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Settled reports whether s is terminal.
func (s State) Settled() bool {
	return s == StateAccepted || s == StateFailed
}

// Handshake is the message posted to the companion tool.
type Handshake struct {
	TabID string  `json:"tabId"`
	CID   string  `json:"cid"`
	Token *string `json:"token"`
}

// session is a single handshake attempt. It owns one frame and at most one
// message listener until it settles. A session that is never accepted keeps
// both.
type session struct {
	origin   string
	document sdk.Document
	logger   *slog.Logger
	payload  Handshake

	mu            sync.Mutex
	state         State
	frame         sdk.Frame
	stopListening func()
}

func newSession(origin string, document sdk.Document, logger *slog.Logger, payload Handshake) *session {
	return &session{
		origin:   origin,
		document: document,
		logger:   logger,
		payload:  payload,
		state:    StateIdle,
	}
}

// start embeds the channel frame. The rest of the attempt runs when the
// frame loads.
func (s *session) start(endpoint string) {
	s.advance(StateArmed)
	s.logger.Debug("playground handshake started")
	s.document.EmbedFrame(endpoint, s.onLoad)
}

func (s *session) onLoad(frame sdk.Frame) {
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()

	window := frame.ContentWindow()
	if window == nil {
		s.fail(oops.With("endpoint", frame.Src()).Errorf("frame content window is unreachable"))
		return
	}

	stop := s.document.AddMessageListener(s.onMessage)
	s.mu.Lock()
	if s.state.Settled() {
		s.mu.Unlock()
		stop()
		return
	}
	s.stopListening = stop
	s.mu.Unlock()

	if err := window.PostMessage(s.payload, s.origin); err != nil {
		s.fail(err)
		return
	}

	s.advance(StateSent)
	s.logger.Debug("playground handshake sent")
}

func (s *session) onMessage(event sdk.MessageEvent) {
	if event.Origin != s.origin {
		return
	}
	if data, ok := event.Data.(string); !ok || data != acceptToken {
		return
	}
	if s.settle(StateAccepted) {
		s.logger.Debug("playground handshake completed")
	}
}

func (s *session) fail(err error) {
	if s.settle(StateFailed) {
		errutil.LogError(s.logger, "playground handshake failed", err)
	}
}

// settle moves to a terminal state and releases the listener and the frame.
// Only the first call wins.
func (s *session) settle(to State) bool {
	s.mu.Lock()
	if s.state.Settled() {
		s.mu.Unlock()
		return false
	}
	s.state = to
	stop, frame := s.stopListening, s.frame
	s.stopListening, s.frame = nil, nil
	s.mu.Unlock()

	Handshakes.WithLabelValues(to.String()).Inc()
	if stop != nil {
		stop()
	}
	if frame != nil {
		s.document.RemoveFrame(frame)
	}
	return true
}

// advance moves to a non-terminal state unless the session already settled.
func (s *session) advance(to State) bool {
	s.mu.Lock()
	if s.state.Settled() {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	Handshakes.WithLabelValues(to.String()).Inc()
	return true
}
