// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package protect

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"

	"github.com/goccy/go-json"
)

// ErrPermanent marks a delivery failure that retrying cannot fix. Sinks
// wrap rejections (bad payload, authentication) with it to have the
// record dropped instead of retried.
var ErrPermanent = errors.New("permanent delivery failure")

// ShouldRetry classifies a send error. Transient transport failures are
// retried; malformed payloads and explicit rejections are not. Unknown
// errors default to retry so a sink bug never silently drops records.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
		return false
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var marshalErr *json.MarshalerError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &marshalErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	}

	return true
}
