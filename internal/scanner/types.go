// Package scanner walks a root directory and streams the text files that
// survive the ignore rules, with their content already read.
package scanner

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amanidx/internal/gitignore"
)

// DefaultMaxFileSize is 10 MiB.
const DefaultMaxFileSize = 10 << 20

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 512

// FileRecord is one scanned file. Records are rebuilt on every scan and
// never stored as-is.
type FileRecord struct {
	// Path is root-relative with forward slashes and unique within a scan.
	Path     string
	AbsPath  string
	Content  []byte
	Size     int64
	ModTime  time.Time
	Language string
}

// SkipReason explains why an entry produced no FileRecord.
type SkipReason string

const (
	SkipBinary     SkipReason = "binary"
	SkipTooLarge   SkipReason = "too_large"
	SkipUnreadable SkipReason = "unreadable"
)

// ScanResult is sent on the Scan channel. Exactly one field is set.
type ScanResult struct {
	File    *FileRecord
	Skipped *Skipped
	// Error is terminal: the walk stopped.
	Error error
}

// Skipped names a file that matched the rules but could not be indexed.
type Skipped struct {
	Path   string
	Reason SkipReason
}

// ScanOptions configures one scan.
type ScanOptions struct {
	RootDir string

	// Rules overrides the policy built from the fields below.
	Rules *gitignore.Rules

	DataDir          string
	Exclude          []string
	RespectGitignore bool

	// Extensions limits the scan to these extensions (".md"); empty means all.
	Extensions []string

	// MaxFileSize defaults to DefaultMaxFileSize.
	MaxFileSize int64

	// Workers bounds concurrent reads; 0 means NumCPU.
	Workers int
}

func (o *ScanOptions) wantExt(rel string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(rel))
	for _, e := range o.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

var languageMap = map[string]string{
	".go":       "go",
	".js":       "javascript",
	".jsx":      "javascript",
	".mjs":      "javascript",
	".ts":       "typescript",
	".tsx":      "typescript",
	".py":       "python",
	".rb":       "ruby",
	".rs":       "rust",
	".java":     "java",
	".kt":       "kotlin",
	".c":        "c",
	".h":        "c",
	".cc":       "cpp",
	".cpp":      "cpp",
	".hpp":      "cpp",
	".cs":       "csharp",
	".swift":    "swift",
	".php":      "php",
	".scala":    "scala",
	".lua":      "lua",
	".sh":       "shell",
	".bash":     "shell",
	".zsh":      "shell",
	".sql":      "sql",
	".html":     "html",
	".css":      "css",
	".scss":     "scss",
	".vue":      "vue",
	".svelte":   "svelte",
	".proto":    "protobuf",
	".graphql":  "graphql",
	".json":     "json",
	".yaml":     "yaml",
	".yml":      "yaml",
	".toml":     "toml",
	".xml":      "xml",
	".ini":      "ini",
	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",
	".rst":      "rst",
	".txt":      "text",
}

var filenameLanguages = map[string]string{
	"Dockerfile":  "dockerfile",
	"Makefile":    "makefile",
	"makefile":    "makefile",
	"GNUmakefile": "makefile",
}

// binaryExtensions are skipped without opening the file.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
	".pdf": true, ".zip": true, ".gz": true, ".tgz": true, ".tar": true, ".7z": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true,
	".class": true, ".jar": true, ".wasm": true, ".pyc": true,
	".db": true, ".sqlite": true, ".woff": true, ".woff2": true, ".ttf": true,
	".mp3": true, ".mp4": true, ".mov": true,
}

// DetectLanguage guesses a language name from the file name; "" if unknown.
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	if lang, ok := filenameLanguages[base]; ok {
		return lang
	}
	return languageMap[strings.ToLower(filepath.Ext(base))]
}

// IsMarkdown reports whether path is a markdown document.
func IsMarkdown(path string) bool {
	return DetectLanguage(path) == "markdown"
}
