// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/holomush/plug/internal/dom"
	"github.com/holomush/plug/pkg/errutil"
	"github.com/holomush/plug/pkg/sdk"
)

// acceptReply is what the companion tool answers a handshake with.
const acceptReply = "accepted"

// companionTool answers every handshake posted to its frame with an
// acceptance addressed to the sender's origin.
func companionTool(logger *slog.Logger) dom.Peer {
	return dom.PeerFunc(func(event sdk.MessageEvent, parent sdk.Window) {
		payload, _ := event.Data.(map[string]any)
		logger.Info("handshake received",
			"origin", event.Origin,
			"tab_id", payload["tabId"],
			"cid", payload["cid"],
			"anonymous", payload["token"] == nil)

		if err := parent.PostMessage(acceptReply, event.Origin); err != nil {
			errutil.LogError(logger, "handshake reply failed", err)
		}
	})
}
