// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package dom is an in-process browsing context. Frames load asynchronously
// and messages are delivered asynchronously after structured cloning, with
// target origins enforced the way a browser enforces them.
package dom

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/plug/pkg/sdk"
)

// Error codes.
const (
	CodeDataClone     = "DATA_CLONE"
	CodeInvalidOrigin = "INVALID_ORIGIN"
	CodeInvalidRoute  = "INVALID_ROUTE"
)

// AnyOrigin matches every target origin.
const AnyOrigin = "*"

// Peer is the content of a routed frame. HandleMessage receives messages
// posted into the frame; parent posts back to the embedding document.
type Peer interface {
	HandleMessage(event sdk.MessageEvent, parent sdk.Window)
}

// PeerFunc adapts a function to Peer.
type PeerFunc func(event sdk.MessageEvent, parent sdk.Window)

// HandleMessage implements Peer.
func (f PeerFunc) HandleMessage(event sdk.MessageEvent, parent sdk.Window) {
	f(event, parent)
}

// Document is an sdk.Document whose frames are served by registered peers.
type Document struct {
	origin string
	logger *slog.Logger

	mu        sync.RWMutex
	routes    []route
	frames    []*frame
	listeners map[uint64]sdk.MessageListener
	nextID    uint64

	inflight sync.WaitGroup
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used for dropped messages.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Document) {
		d.logger = logger
	}
}

// New creates a document with the given origin.
func New(origin string, opts ...Option) *Document {
	d := &Document{
		origin:    origin,
		logger:    slog.Default(),
		listeners: make(map[uint64]sdk.MessageListener),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ sdk.Document = (*Document)(nil)

// Origin implements sdk.Document.
func (d *Document) Origin() string {
	return d.origin
}

// route serves frames whose origin matches pattern.
type route struct {
	pattern string
	match   glob.Glob
	peer    Peer
}

// Route serves frames whose source origin matches pattern with peer. The
// pattern is a glob where * stays within one host label, so
// "https://*.example" matches "https://play.example". Routing the same
// pattern again replaces its peer; otherwise the earliest matching route
// wins. Frames without a route have no reachable content window.
func (d *Document) Route(pattern string, peer Peer) error {
	match, err := glob.Compile(pattern, '.')
	if err != nil {
		return oops.Code(CodeInvalidRoute).With("pattern", pattern).Wrap(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.routes {
		if d.routes[i].pattern == pattern {
			d.routes[i].peer = peer
			return nil
		}
	}
	d.routes = append(d.routes, route{pattern: pattern, match: match, peer: peer})
	return nil
}

// peerFor returns the peer routed for origin. The caller holds d.mu.
func (d *Document) peerFor(origin string) Peer {
	for _, r := range d.routes {
		if r.match.Match(origin) {
			return r.peer
		}
	}
	return nil
}

// EmbedFrame implements sdk.Document.
func (d *Document) EmbedFrame(src string, onLoad func(sdk.Frame)) sdk.Frame {
	f := &frame{doc: d, src: src, origin: OriginOf(src)}

	d.mu.Lock()
	f.peer = d.peerFor(f.origin)
	d.frames = append(d.frames, f)
	d.mu.Unlock()

	if onLoad != nil {
		d.async(func() { onLoad(f) })
	}
	return f
}

// RemoveFrame implements sdk.Document.
func (d *Document) RemoveFrame(target sdk.Frame) {
	f, ok := target.(*frame)
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = slices.DeleteFunc(d.frames, func(candidate *frame) bool { return candidate == f })
}

// AddMessageListener implements sdk.Document.
func (d *Document) AddMessageListener(l sdk.MessageListener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.listeners, id)
		})
	}
}

// Dispatch delivers event to the document's listeners as if it was posted
// by a window of event.Origin.
func (d *Document) Dispatch(event sdk.MessageEvent) {
	d.async(func() { d.deliver(event) })
}

// Frames returns the attached frames.
func (d *Document) Frames() []sdk.Frame {
	d.mu.RLock()
	defer d.mu.RUnlock()

	frames := make([]sdk.Frame, len(d.frames))
	for i, f := range d.frames {
		frames[i] = f
	}
	return frames
}

// ListenerCount returns the number of registered message listeners.
func (d *Document) ListenerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// Wait blocks until every pending load and message delivery has run.
func (d *Document) Wait() {
	d.inflight.Wait()
}

func (d *Document) async(fn func()) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		fn()
	}()
}

func (d *Document) deliver(event sdk.MessageEvent) {
	d.mu.RLock()
	ids := make([]uint64, 0, len(d.listeners))
	for id := range d.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]sdk.MessageListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, d.listeners[id])
	}
	d.mu.RUnlock()

	for _, l := range listeners {
		l(event)
	}
}

func (d *Document) attached(f *frame) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Contains(d.frames, f)
}

// post clones data and schedules delivery when targetOrigin admits
// receiverOrigin.
func (d *Document) post(data any, targetOrigin, receiverOrigin string, deliver func(any)) error {
	if targetOrigin == "" {
		return oops.Code(CodeInvalidOrigin).Errorf("target origin must not be empty")
	}

	clone, err := structuredClone(data)
	if err != nil {
		return err
	}

	if targetOrigin != AnyOrigin && OriginOf(targetOrigin) != receiverOrigin {
		d.logger.Debug("message dropped: target origin mismatch",
			"target_origin", targetOrigin,
			"receiver_origin", receiverOrigin)
		return nil
	}

	d.async(func() { deliver(clone) })
	return nil
}

// frame is an embedded frame.
type frame struct {
	doc    *Document
	src    string
	origin string
	peer   Peer
}

func (f *frame) Src() string { return f.src }

func (f *frame) ContentWindow() sdk.Window {
	if f.peer == nil {
		return nil
	}
	return &contentWindow{frame: f}
}

// contentWindow is the window inside a frame.
type contentWindow struct {
	frame *frame
}

func (w *contentWindow) PostMessage(data any, targetOrigin string) error {
	f := w.frame
	return f.doc.post(data, targetOrigin, f.origin, func(clone any) {
		if !f.doc.attached(f) {
			return
		}
		f.peer.HandleMessage(sdk.MessageEvent{Origin: f.doc.origin, Data: clone}, &parentWindow{frame: f})
	})
}

// parentWindow is the embedding document as seen from a frame.
type parentWindow struct {
	frame *frame
}

func (w *parentWindow) PostMessage(data any, targetOrigin string) error {
	f := w.frame
	return f.doc.post(data, targetOrigin, f.doc.origin, func(clone any) {
		f.doc.deliver(sdk.MessageEvent{Origin: f.origin, Data: clone})
	})
}

// OriginOf returns the scheme://host[:port] origin of rawURL, or "null" when
// rawURL is not an absolute URL.
func OriginOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "null"
	}
	return u.Scheme + "://" + u.Host
}

// structuredClone copies data through its JSON form.
func structuredClone(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, oops.Code(CodeDataClone).Wrapf(err, "message could not be cloned")
	}
	var clone any
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, oops.Code(CodeDataClone).Wrapf(err, "message could not be cloned")
	}
	return clone, nil
}
