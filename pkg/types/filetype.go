// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"path/filepath"
	"strings"
)

var fileTypes = map[string]string{
	"jpg": "image", "jpeg": "image", "png": "image", "gif": "image",
	"webp": "image", "bmp": "image", "svg": "image", "ico": "image",

	"zip": "archive", "rar": "archive", "7z": "archive", "tar": "archive",
	"gz": "archive",

	"pdf": "document", "doc": "document", "docx": "document",
	"txt": "document", "md": "document", "json": "document",
	"xml": "document", "csv": "document", "xls": "document",
	"xlsx": "document", "ppt": "document", "pptx": "document",

	"mp4": "video", "avi": "video", "mov": "video", "wmv": "video",
	"flv": "video", "mkv": "video",

	"mp3": "audio", "wav": "audio", "ogg": "audio", "flac": "audio",
}

// Ext returns the lowercased extension of filename without the dot.
func Ext(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// FileTypeFor classifies an extension into a coarse category.
func FileTypeFor(ext string) string {
	if t, ok := fileTypes[strings.ToLower(ext)]; ok {
		return t
	}
	return "other"
}

// AllowedExtension reports whether whole-file uploads accept ext.
// Chunked uploads are not filtered; the allow list only guards the
// multipart whole-file path.
func AllowedExtension(ext string) bool {
	_, ok := fileTypes[strings.ToLower(ext)]
	return ok
}
