// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

// Package modules manages the module directory tree under the uploads
// root: module and submodule creation, recursive file listing, and
// deletion. The directory layout is the source of truth; there is no
// database.
package modules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/types"
	"github.com/berthd/berth/pkg/upload"
)

// Service performs module and file management against the uploads and
// temp roots. All inputs are validated before any path is formed.
type Service struct {
	uploadsRoot string
	tempRoot    string
}

func NewService(uploadsRoot, tempRoot string) *Service {
	return &Service{uploadsRoot: uploadsRoot, tempRoot: tempRoot}
}

// CreateModule creates uploads/{name} and its temp twin. The temp
// directory is best effort, matching the upload path which creates it
// on demand anyway.
func (s *Service) CreateModule(name string) error {
	if !types.ValidModuleName(name) {
		return &upload.ValidationError{Field: "name", Reason: "illegal characters"}
	}

	modulePath := filepath.Join(s.uploadsRoot, name)
	if err := os.MkdirAll(modulePath, 0755); err != nil {
		return fmt.Errorf("create module dir %s: %w", modulePath, err)
	}
	if err := os.MkdirAll(filepath.Join(s.tempRoot, name), 0755); err != nil {
		logger.Warn().Err(err).Str("module", name).Msg("failed to create temp dir")
	}
	return nil
}

// CreateSubmodule creates uploads/{module}/{name} plus the temp twin.
func (s *Service) CreateSubmodule(module, name string) error {
	if !types.ValidModuleName(module) {
		return &upload.ValidationError{Field: "module", Reason: "illegal characters"}
	}
	if !types.ValidModuleName(name) {
		return &upload.ValidationError{Field: "name", Reason: "illegal characters"}
	}

	subPath := filepath.Join(s.uploadsRoot, module, name)
	if err := os.MkdirAll(subPath, 0755); err != nil {
		return fmt.Errorf("create submodule dir %s: %w", subPath, err)
	}
	if err := os.MkdirAll(filepath.Join(s.tempRoot, module, name), 0755); err != nil {
		logger.Warn().Err(err).Str("module", module).Str("submodule", name).Msg("failed to create temp dir")
	}
	return nil
}

// ListModules returns a summary for every module directory under the
// uploads root. A missing root is an empty catalog, not an error.
func (s *Service) ListModules() ([]types.ModuleInfo, error) {
	entries, err := os.ReadDir(s.uploadsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.ModuleInfo{}, nil
		}
		return nil, fmt.Errorf("read uploads root: %w", err)
	}

	infos := make([]types.ModuleInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := s.moduleInfo(entry)
		if err != nil {
			logger.Warn().Err(err).Str("module", entry.Name()).Msg("failed to summarize module")
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *Service) moduleInfo(entry os.DirEntry) (types.ModuleInfo, error) {
	var count int
	var size int64
	countFiles(filepath.Join(s.uploadsRoot, entry.Name()), &count, &size)

	created := "unknown"
	if fi, err := entry.Info(); err == nil {
		created = fi.ModTime().UTC().Format(types.TimeFormat)
	}

	return types.ModuleInfo{
		Name:        entry.Name(),
		FileCount:   count,
		CreatedTime: created,
		TotalSize:   size,
	}, nil
}

// ListSubmodules returns the names of the immediate subdirectories of
// a module.
func (s *Service) ListSubmodules(module string) ([]string, error) {
	if !types.ValidModuleName(module) {
		return nil, &upload.ValidationError{Field: "module", Reason: "illegal characters"}
	}

	entries, err := os.ReadDir(filepath.Join(s.uploadsRoot, module))
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", module, err)
	}

	subs := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			subs = append(subs, entry.Name())
		}
	}
	return subs, nil
}

// ListFiles walks a module path recursively and returns every file it
// holds, newest first. The path may span submodules ("assets/icons").
func (s *Service) ListFiles(modulePath string) ([]types.FileInfo, error) {
	if !types.ValidModulePath(modulePath) {
		return nil, &upload.ValidationError{Field: "module", Reason: "illegal characters"}
	}

	base := filepath.Join(s.uploadsRoot, modulePath)
	if _, err := os.Stat(base); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("module %s: %w", modulePath, os.ErrNotExist)
		}
		return nil, fmt.Errorf("stat module %s: %w", modulePath, err)
	}

	files := []types.FileInfo{}
	if err := s.collectFiles(base, "", modulePath, &files); err != nil {
		return nil, fmt.Errorf("collect files for %s: %w", modulePath, err)
	}

	// TimeFormat is lexicographically ordered, so a string sort is a
	// time sort.
	sort.Slice(files, func(i, j int) bool {
		return files[i].UploadTime > files[j].UploadTime
	})
	return files, nil
}

func (s *Service) collectFiles(base, current, module string, files *[]types.FileInfo) error {
	entries, err := os.ReadDir(filepath.Join(base, current))
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			next := entry.Name()
			if current != "" {
				next = current + "/" + entry.Name()
			}
			if err := s.collectFiles(base, next, module, files); err != nil {
				return err
			}
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}

		url := "/uploads/" + module + "/" + entry.Name()
		if current != "" {
			url = "/uploads/" + module + "/" + current + "/" + entry.Name()
		}

		*files = append(*files, types.FileInfo{
			Filename:     entry.Name(),
			URL:          url,
			Module:       module,
			UploadTime:   fi.ModTime().UTC().Format(types.TimeFormat),
			Size:         fi.Size(),
			FileType:     types.FileTypeFor(types.Ext(entry.Name())),
			RelativePath: current,
		})
	}
	return nil
}

// BuildFilePath resolves the destination for a whole-file upload,
// creating the module and relative directories and renaming on
// collision ("report.pdf" becomes "report_1.pdf", then "report_2.pdf").
func (s *Service) BuildFilePath(module, filename, relativePath string) (string, error) {
	if !types.ValidModuleName(module) {
		return "", &upload.ValidationError{Field: "module", Reason: "illegal characters"}
	}
	if !types.ValidFilename(filename) {
		return "", &upload.ValidationError{Field: "filename", Reason: "illegal characters"}
	}
	if !types.ValidRelativePath(relativePath) {
		return "", &upload.ValidationError{Field: "relative_path", Reason: "illegal characters"}
	}

	dir := filepath.Join(s.uploadsRoot, module)
	if relativePath != "" {
		dir = filepath.Join(dir, relativePath)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create destination dir %s: %w", dir, err)
	}

	return uniquePath(dir, filename), nil
}

// uniquePath returns dir/filename, suffixing the stem with _1, _2, ...
// until the name is free.
func uniquePath(dir, filename string) string {
	candidate := filepath.Join(dir, filename)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}

	ext := types.Ext(filename)
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if stem == "" {
		stem = "file"
	}

	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", stem, i)
		if ext != "" {
			name = fmt.Sprintf("%s_%d.%s", stem, i, ext)
		}
		candidate = filepath.Join(dir, name)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// DeleteFile removes a single file from a module.
func (s *Service) DeleteFile(module, filename string) error {
	if !types.ValidModuleName(module) {
		return &upload.ValidationError{Field: "module", Reason: "illegal characters"}
	}
	if !types.ValidFilename(filename) {
		return &upload.ValidationError{Field: "filename", Reason: "illegal characters"}
	}

	path := filepath.Join(s.uploadsRoot, module, filename)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}

// DeleteFolder removes a folder subtree inside a module.
func (s *Service) DeleteFolder(module, folder string) error {
	if !types.ValidModuleName(module) {
		return &upload.ValidationError{Field: "module", Reason: "illegal characters"}
	}
	if !types.ValidModulePath(folder) {
		return &upload.ValidationError{Field: "folder", Reason: "illegal characters"}
	}

	path := filepath.Join(s.uploadsRoot, module, folder)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete folder %s: %w", path, err)
	}
	return nil
}

// DeleteModule removes a module's uploads subtree. The temp twin is
// best effort.
func (s *Service) DeleteModule(module string) error {
	if !types.ValidModuleName(module) {
		return &upload.ValidationError{Field: "module", Reason: "illegal characters"}
	}

	path := filepath.Join(s.uploadsRoot, module)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete module %s: %w", path, err)
	}
	if err := os.RemoveAll(filepath.Join(s.tempRoot, module)); err != nil {
		logger.Warn().Err(err).Str("module", module).Msg("failed to remove temp dir")
	}
	return nil
}
