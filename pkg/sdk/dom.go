// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

// MessageEvent is a cross-document message received by a document.
type MessageEvent struct {
	// Origin is the origin of the sender.
	Origin string
	// Data is the message payload after structured cloning.
	Data any
}

// MessageListener receives cross-document messages.
type MessageListener func(event MessageEvent)

// Window is the execution context of an embedded frame.
type Window interface {
	// PostMessage sends data to the window. The message is dropped unless the
	// window's origin matches targetOrigin ("*" matches any origin).
	PostMessage(data any, targetOrigin string) error
}

// Frame is an embedded frame.
type Frame interface {
	Src() string

	// ContentWindow returns the frame's execution context, or nil when it is
	// unreachable.
	ContentWindow() Window
}

// Document is the page hosting the library.
type Document interface {
	// Origin returns the document's own origin.
	Origin() string

	// EmbedFrame creates a hidden frame pointing at src and appends it to the
	// document. onLoad runs once the frame has loaded.
	EmbedFrame(src string, onLoad func(Frame)) Frame

	// RemoveFrame detaches a frame. Removing a detached frame is a no-op.
	RemoveFrame(frame Frame)

	// AddMessageListener registers l for messages posted to the document.
	// The returned function removes it.
	AddMessageListener(l MessageListener) (remove func())
}
