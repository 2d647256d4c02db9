package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amanidx/internal/async"
	"github.com/Aman-CERP/amanidx/internal/index"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Hint     string      `json:"hint,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// embedderProbeTimeout bounds the embedding round trip.
const embedderProbeTimeout = 10 * time.Second

// Options configures a Checker. Root is required.
type Options struct {
	Root    string
	DataDir string
	// ConfigErr is the error from loading configuration, if any.
	ConfigErr error
	// ProbeEmbedder embeds a test string with the configured backend. Nil
	// means embeddings are disabled.
	ProbeEmbedder func(ctx context.Context) error
}

// Checker runs the checks for one project.
type Checker struct {
	opts Options
}

func New(opts Options) *Checker {
	if opts.DataDir == "" {
		opts.DataDir = filepath.Join(opts.Root, index.DefaultDataDir)
	}
	return &Checker{opts: opts}
}

// RunAll runs every check in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	return []CheckResult{
		c.CheckConfig(),
		CheckDiskSpace(c.opts.Root),
		CheckWritePermissions(c.opts.Root),
		CheckFileDescriptors(),
		c.CheckEmbedder(ctx),
		CheckIndexState(c.opts.DataDir),
	}
}

// CheckConfig reports the configuration load result.
func (c *Checker) CheckConfig() CheckResult {
	r := CheckResult{Name: "config", Required: true, Status: StatusPass, Message: "OK"}
	if c.opts.ConfigErr != nil {
		r.Status = StatusFail
		r.Message = c.opts.ConfigErr.Error()
		r.Hint = "run 'amanidx config show --source defaults' for the accepted keys"
	}
	return r
}

// CheckEmbedder warns, not fails, on a broken backend: indexing still
// works with keyword search only.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	r := CheckResult{Name: "embedder"}
	if c.opts.ProbeEmbedder == nil {
		r.Status = StatusPass
		r.Message = "disabled (keyword search only)"
		return r
	}
	ctx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()
	if err := c.opts.ProbeEmbedder(ctx); err != nil {
		r.Status = StatusWarn
		r.Message = err.Error()
		r.Hint = "check embeddings.host and that the model is pulled, or set embeddings.provider to static"
		return r
	}
	r.Status = StatusPass
	r.Message = "OK"
	return r
}

// CheckWritePermissions creates and removes a temp file in dir.
func CheckWritePermissions(dir string) CheckResult {
	r := CheckResult{Name: "write_permissions", Required: true}
	f, err := os.CreateTemp(dir, ".amanidx-preflight-*")
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("permission denied: %v", err)
		return r
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	r.Status = StatusPass
	r.Message = "OK"
	return r
}

// CheckIndexState inspects the stored snapshot without opening it.
func CheckIndexState(dataDir string) CheckResult {
	r := CheckResult{Name: "index"}
	switch _, err := os.Stat(filepath.Join(dataDir, index.SnapshotFile)); {
	case errors.Is(err, os.ErrNotExist):
		r.Status = StatusWarn
		r.Message = "not indexed yet"
		r.Hint = "run 'amanidx index'"
		return r
	case err != nil:
		r.Status = StatusFail
		r.Message = err.Error()
		return r
	}
	if async.HasIncompleteRun(dataDir) {
		r.Status = StatusWarn
		r.Message = "the last background index run did not finish"
		r.Hint = "run 'amanidx index' to bring the snapshot up to date"
		return r
	}
	r.Status = StatusPass
	r.Message = "snapshot present"
	return r
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// Summary is "failed", "ready_with_warnings" or "ready".
func Summary(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// Print writes one line per check, then the overall status.
func Print(w io.Writer, results []CheckResult) {
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Hint != "" && r.Status != StatusPass {
			_, _ = fmt.Fprintf(w, "       %s\n", r.Hint)
		}
	}
	_, _ = fmt.Fprintf(w, "\nStatus: %s\n", strings.ToUpper(Summary(results)))
}
