// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createNameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	infos, err := s.deps.Modules.ListModules()
	if err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, "modules listed", infos)
}

func (s *Server) handleCreateModule(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	var req createNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.deps.Stats.RecordError()
		writeFail(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	if err := s.deps.Modules.CreateModule(req.Name); err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("module %s created", req.Name), nil)
}

func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	module := chi.URLParam(r, "module")
	if err := s.deps.Modules.DeleteModule(module); err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("module %s deleted", module), nil)
}

func (s *Server) handleListSubmodules(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	subs, err := s.deps.Modules.ListSubmodules(chi.URLParam(r, "module"))
	if err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, "submodules listed", subs)
}

func (s *Server) handleCreateSubmodule(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	var req createNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.deps.Stats.RecordError()
		writeFail(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	module := chi.URLParam(r, "module")
	if err := s.deps.Modules.CreateSubmodule(module, req.Name); err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("submodule %s created", req.Name), nil)
}

// handleListFiles lists a module subtree recursively, newest first.
// The wildcard lets the path span submodules.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	files, err := s.deps.Modules.ListFiles(chi.URLParam(r, "*"))
	if err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, "files listed", files)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	module := chi.URLParam(r, "module")
	filename := chi.URLParam(r, "filename")
	if err := s.deps.Modules.DeleteFile(module, filename); err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("file %s deleted", filename), nil)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	module := chi.URLParam(r, "module")
	folder := chi.URLParam(r, "*")
	if err := s.deps.Modules.DeleteFolder(module, folder); err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("folder %s deleted", folder), nil)
}
