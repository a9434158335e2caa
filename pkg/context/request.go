// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"

	"github.com/google/uuid"
)

const (
	// RequestKey is the wire name of the request ID, used both as the
	// inbound/outbound HTTP header and as the log field name.
	RequestKey = "berth-request-id"
)

type RequestID struct{}

// WithUUID returns a context carrying a request ID, minting a new one
// when the context does not already have one.
func WithUUID(c context.Context) (context.Context, string) {
	if id, ok := c.Value(RequestID{}).(string); ok && id != "" {
		return c, id
	}
	newID := uuid.New().String()
	c = context.WithValue(c, RequestID{}, newID)
	return c, newID
}

// FromUUID stamps an externally supplied request ID onto the context.
func FromUUID(c context.Context, reqID string) context.Context {
	return context.WithValue(c, RequestID{}, reqID)
}
