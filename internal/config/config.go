package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// ProjectFileNames are the project config files, in lookup order.
var ProjectFileNames = []string{".amanidx.yaml", ".amanidx.yml"}

// Config represents the complete amanidx configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge" json:"knowledge"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures which files are indexed.
type PathsConfig struct {
	// Include lists file extensions (".go", ".md"). Empty means every
	// text file the scanner accepts.
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
	// MaxFileSize in bytes; larger files are skipped.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
	// RespectGitignore is a pointer so an explicit false survives merging.
	RespectGitignore *bool `yaml:"respect_gitignore,omitempty" json:"respect_gitignore,omitempty"`
}

// IndexConfig tunes tokenization, ranking and change detection.
type IndexConfig struct {
	Limit    int     `yaml:"limit" json:"limit"`
	MinScore float64 `yaml:"min_score" json:"min_score"`
	// ChangeThreshold is the fraction of drifted files that forces a full
	// rebuild. Negative disables full rebuilds.
	ChangeThreshold float64  `yaml:"change_threshold" json:"change_threshold"`
	MinTokenLength  int      `yaml:"min_token_length" json:"min_token_length"`
	StopWords       []string `yaml:"stop_words" json:"stop_words"`
	Workers         int      `yaml:"workers" json:"workers"`
}

// StoreConfig selects the snapshot database driver.
type StoreConfig struct {
	// Driver is "sqlite" (pure Go, default) or "sqlite3" (cgo).
	Driver string `yaml:"driver" json:"driver"`
}

// EmbeddingsConfig configures optional vector augmentation.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Host       string `yaml:"host" json:"host"`
	APIKeyEnv  string `yaml:"api_key_env" json:"api_key_env"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// WatchConfig holds durations as strings ("1s", "300ms").
type WatchConfig struct {
	CodeDebounce      string `yaml:"code_debounce" json:"code_debounce"`
	KnowledgeDebounce string `yaml:"knowledge_debounce" json:"knowledge_debounce"`
	PollInterval      string `yaml:"poll_interval" json:"poll_interval"`
}

// KnowledgeConfig points at the knowledge-base directory, relative to the
// project root unless absolute.
type KnowledgeConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// ServerConfig configures logging and the HTTP API.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	HTTPAddr string `yaml:"http_addr" json:"http_addr"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/go.sum",
}

var validProviders = map[string]bool{"": true, "none": true, "static": true, "ollama": true, "openai": true}

var validDrivers = map[string]bool{"sqlite": true, "sqlite3": true}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	respect := true
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include:          []string{},
			Exclude:          append([]string(nil), defaultExcludePatterns...),
			MaxFileSize:      1 << 20,
			RespectGitignore: &respect,
		},
		Index: IndexConfig{
			Limit:           10,
			MinScore:        0.01,
			ChangeThreshold: 0.2,
			MinTokenLength:  2,
			Workers:         runtime.NumCPU(),
		},
		Store: StoreConfig{Driver: "sqlite"},
		Embeddings: EmbeddingsConfig{
			Provider:  "none",
			BatchSize: 32,
			CacheSize: 1000,
		},
		Watch: WatchConfig{
			CodeDebounce:      "1s",
			KnowledgeDebounce: "300ms",
			PollInterval:      "5s",
		},
		Knowledge: KnowledgeConfig{Dir: "docs"},
		Server:    ServerConfig{LogLevel: "info"},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/amanidx/config.yaml, else ~/.config/amanidx/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanidx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanidx", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanidx", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	var cfg Config
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads configuration for the project in dir. Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/amanidx/config.yaml)
//  3. Project config (.amanidx.yaml in dir)
//  4. Environment variables (AMANIDX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := LoadUserConfig()
	if err != nil {
		return nil, err
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, or "" if none.
func ProjectConfigPath(dir string) string {
	for _, name := range ProjectFileNames {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

func (c *Config) loadFromFile(dir string) error {
	path := ProjectConfigPath(dir)
	if path == "" {
		return nil
	}
	var parsed Config
	if err := readYAML(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return amerrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return amerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion("check the YAML syntax")
	}
	return nil
}

// mergeWith merges non-zero values from other into c. Exclude patterns are
// appended to the defaults rather than replacing them.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = appendUnique(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Paths.MaxFileSize != 0 {
		c.Paths.MaxFileSize = other.Paths.MaxFileSize
	}
	if other.Paths.RespectGitignore != nil {
		v := *other.Paths.RespectGitignore
		c.Paths.RespectGitignore = &v
	}

	if other.Index.Limit != 0 {
		c.Index.Limit = other.Index.Limit
	}
	if other.Index.MinScore != 0 {
		c.Index.MinScore = other.Index.MinScore
	}
	if other.Index.ChangeThreshold != 0 {
		c.Index.ChangeThreshold = other.Index.ChangeThreshold
	}
	if other.Index.MinTokenLength != 0 {
		c.Index.MinTokenLength = other.Index.MinTokenLength
	}
	if len(other.Index.StopWords) > 0 {
		c.Index.StopWords = other.Index.StopWords
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}

	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Host != "" {
		c.Embeddings.Host = other.Embeddings.Host
	}
	if other.Embeddings.APIKeyEnv != "" {
		c.Embeddings.APIKeyEnv = other.Embeddings.APIKeyEnv
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Watch.CodeDebounce != "" {
		c.Watch.CodeDebounce = other.Watch.CodeDebounce
	}
	if other.Watch.KnowledgeDebounce != "" {
		c.Watch.KnowledgeDebounce = other.Watch.KnowledgeDebounce
	}
	if other.Watch.PollInterval != "" {
		c.Watch.PollInterval = other.Watch.PollInterval
	}

	if other.Knowledge.Dir != "" {
		c.Knowledge.Dir = other.Knowledge.Dir
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.HTTPAddr != "" {
		c.Server.HTTPAddr = other.Server.HTTPAddr
	}
}

// applyEnvOverrides applies AMANIDX_* environment variables. A set but
// unparseable numeric variable is a configuration error.
func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"AMANIDX_EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"AMANIDX_EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"AMANIDX_EMBEDDINGS_HOST":     &c.Embeddings.Host,
		"AMANIDX_STORE_DRIVER":        &c.Store.Driver,
		"AMANIDX_KNOWLEDGE_DIR":       &c.Knowledge.Dir,
		"AMANIDX_LOG_LEVEL":           &c.Server.LogLevel,
		"AMANIDX_HTTP_ADDR":           &c.Server.HTTPAddr,
		"AMANIDX_CODE_DEBOUNCE":       &c.Watch.CodeDebounce,
		"AMANIDX_KNOWLEDGE_DEBOUNCE":  &c.Watch.KnowledgeDebounce,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	// AMANIDX_EMBEDDER is an alias for AMANIDX_EMBEDDINGS_PROVIDER.
	if v := os.Getenv("AMANIDX_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}

	ints := map[string]*int{
		"AMANIDX_LIMIT":                 &c.Index.Limit,
		"AMANIDX_EMBEDDINGS_DIMENSIONS": &c.Embeddings.Dimensions,
		"AMANIDX_EMBEDDINGS_BATCH_SIZE": &c.Embeddings.BatchSize,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return amerrors.ConfigError(fmt.Sprintf("%s must be an integer, got %q", name, v), err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"AMANIDX_MIN_SCORE":        &c.Index.MinScore,
		"AMANIDX_CHANGE_THRESHOLD": &c.Index.ChangeThreshold,
	}
	for name, dst := range floats {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return amerrors.ConfigError(fmt.Sprintf("%s must be a number, got %q", name, v), err)
		}
		*dst = f
	}

	if v := os.Getenv("AMANIDX_RESPECT_GITIGNORE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return amerrors.ConfigError(fmt.Sprintf("AMANIDX_RESPECT_GITIGNORE must be a boolean, got %q", v), err)
		}
		c.Paths.RespectGitignore = &b
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return amerrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Index.Limit < 0 {
		return invalid("index.limit must be non-negative, got %d", c.Index.Limit)
	}
	if c.Index.MinScore < 0 || c.Index.MinScore > 1 {
		return invalid("index.min_score must be between 0 and 1, got %g", c.Index.MinScore)
	}
	if c.Index.ChangeThreshold > 1 {
		return invalid("index.change_threshold must be at most 1, got %g", c.Index.ChangeThreshold)
	}
	if c.Index.MinTokenLength < 0 {
		return invalid("index.min_token_length must be non-negative, got %d", c.Index.MinTokenLength)
	}
	if c.Index.Workers < 0 {
		return invalid("index.workers must be non-negative, got %d", c.Index.Workers)
	}
	if c.Paths.MaxFileSize < 0 {
		return invalid("paths.max_file_size must be non-negative, got %d", c.Paths.MaxFileSize)
	}

	if !validDrivers[strings.ToLower(c.Store.Driver)] {
		return invalid("store.driver must be 'sqlite' or 'sqlite3', got %s", c.Store.Driver)
	}

	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return amerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", c.Embeddings.Provider), nil).
			WithSuggestion("use one of: none, static, ollama, openai")
	}
	if c.Embeddings.BatchSize < 0 {
		return invalid("embeddings.batch_size must be non-negative, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Dimensions < 0 {
		return invalid("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.CacheSize < 0 {
		return invalid("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	for name, v := range map[string]string{
		"watch.code_debounce":      c.Watch.CodeDebounce,
		"watch.knowledge_debounce": c.Watch.KnowledgeDebounce,
		"watch.poll_interval":      c.Watch.PollInterval,
	} {
		if _, err := parseDuration(v); err != nil {
			return amerrors.ConfigError(fmt.Sprintf("%s: invalid duration %q", name, v), err)
		}
	}

	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return invalid("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// RespectsGitignore reports the effective gitignore setting (default true).
func (c *Config) RespectsGitignore() bool {
	return c.Paths.RespectGitignore == nil || *c.Paths.RespectGitignore
}

// CodeDebounce returns the parsed watch.code_debounce, zero if unset.
func (c *Config) CodeDebounce() time.Duration {
	d, _ := parseDuration(c.Watch.CodeDebounce)
	return d
}

// KnowledgeDebounce returns the parsed watch.knowledge_debounce.
func (c *Config) KnowledgeDebounce() time.Duration {
	d, _ := parseDuration(c.Watch.KnowledgeDebounce)
	return d
}

// PollInterval returns the parsed watch.poll_interval.
func (c *Config) PollInterval() time.Duration {
	d, _ := parseDuration(c.Watch.PollInterval)
	return d
}

// KnowledgeDir resolves knowledge.dir against root.
func (c *Config) KnowledgeDir(root string) string {
	if filepath.IsAbs(c.Knowledge.Dir) {
		return c.Knowledge.Dir
	}
	return filepath.Join(root, c.Knowledge.Dir)
}

// parseDuration accepts "" as zero and rejects negative values.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// project config file. It returns the absolute startDir if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := absDir
	for {
		if dirExists(filepath.Join(dir, ".git")) || ProjectConfigPath(dir) != "" {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func appendUnique(base []string, extra ...string) []string {
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range extra {
		if !seen[s] {
			base = append(base, s)
			seen[s] = true
		}
	}
	return base
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
