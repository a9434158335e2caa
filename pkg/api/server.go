// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the upload engine over HTTP: chunk and whole
// file uploads, merge/progress/check, module management, and the
// system surface. Every response uses the Envelope shape.
package api

import (
	"net/http"
	"time"

	"github.com/berthd/berth/pkg/modules"
	"github.com/berthd/berth/pkg/upload"
	"github.com/berthd/berth/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// Config holds the server's filesystem roots. FrontendRoot is optional;
// when empty no frontend is served. MinFreeSpace, when set, turns the
// health report degraded once the uploads disk drops below it.
type Config struct {
	UploadsRoot  string
	FrontendRoot string
	MinFreeSpace *utils.FreeSpace
}

// Deps are the engine pieces the handlers drive. Everything is
// injected; the package holds no global state besides metrics.
type Deps struct {
	Receiver  *upload.Receiver
	Merger    *upload.Merger
	Advisor   *upload.Advisor
	Janitor   *upload.Janitor
	Admission *upload.Admission
	Locks     *upload.LockRegistry
	Tracker   *upload.ProgressTracker
	Stats     *upload.Stats
	Modules   *modules.Service
}

type Server struct {
	cfg     Config
	deps    Deps
	started time.Time
}

func NewServer(cfg Config, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps, started: time.Now()}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(withObservability)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Post("/cleanup", s.handleCleanup)

		r.Get("/modules", s.handleListModules)
		r.Post("/modules", s.handleCreateModule)
		r.Delete("/modules/{module}", s.handleDeleteModule)
		r.Get("/modules/{module}/submodules", s.handleListSubmodules)
		r.Post("/modules/{module}/submodules", s.handleCreateSubmodule)

		r.Post("/upload", s.handleUpload)
		r.Post("/upload/chunk", s.handleChunk)
		r.Post("/upload/merge", s.handleMerge)
		r.Get("/upload/progress/{module}/{filename}", s.handleProgress)
		r.Post("/upload/check", s.handleCheck)

		r.Get("/files/*", s.handleListFiles)
		r.Delete("/file/{module}/{filename}", s.handleDeleteFile)
		r.Delete("/folder/{module}/*", s.handleDeleteFolder)
	})

	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.UploadsRoot))))
	if s.cfg.FrontendRoot != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.FrontendRoot)))
	}
	return r
}
