// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httphelpers carries small HTTP utilities shared by the outbound
// API clients.
package httphelpers

import (
	"io"
	"net/http"
)

// drainLimit caps how much leftover body gets read back for connection
// reuse. Anything larger is cheaper to drop along with the connection.
const drainLimit = 256 << 10

// DrainAndClose consumes the remaining response body and closes it to allow connection reuse.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	resp.Body.Close()
}
