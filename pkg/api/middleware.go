// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"net/http"
	"time"

	bctx "github.com/berthd/berth/pkg/context"
	"github.com/berthd/berth/pkg/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withRequestID stamps every request with an ID, honoring one supplied
// by the client, and echoes it back in the response header.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(bctx.RequestKey); id != "" {
			ctx = bctx.FromUUID(ctx, id)
		}
		ctx, id := bctx.WithUUID(ctx)

		reqLogger := logger.Ctx(ctx).With().Str(bctx.RequestKey, id).Logger()
		ctx = logger.WithLogger(ctx, &reqLogger)

		w.Header().Set(bctx.RequestKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withObservability logs each request on completion and feeds the HTTP
// metrics.
func withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		httpRequests.WithLabelValues(r.Method, fmt.Sprintf("%dxx", rec.status/100)).Inc()
		httpDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())

		logger.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request completed")
	})
}
