package mcp

import (
	"path/filepath"
	"strings"
)

var mimeTypes = map[string]string{
	".go":   "text/x-go",
	".ts":   "text/typescript",
	".tsx":  "text/typescript",
	".js":   "text/javascript",
	".jsx":  "text/javascript",
	".py":   "text/x-python",
	".rs":   "text/x-rust",
	".java": "text/x-java",
	".rb":   "text/x-ruby",
	".c":    "text/x-c",
	".h":    "text/x-c",
	".cpp":  "text/x-c++",
	".hpp":  "text/x-c++",
	".sh":   "text/x-sh",
	".sql":  "text/x-sql",
	".html": "text/html",
	".css":  "text/css",
	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".toml": "text/x-toml",
	".md":   "text/markdown",
	".mdx":  "text/markdown",
	".txt":  "text/plain",
}

var specialFilenames = map[string]string{
	"Dockerfile": "text/x-dockerfile",
	"Makefile":   "text/x-makefile",
}

// MimeTypeForPath returns "text/plain" for anything it does not know.
func MimeTypeForPath(path string) string {
	if mime, ok := specialFilenames[filepath.Base(path)]; ok {
		return mime
	}
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "text/plain"
}
