package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors keeps the watcher and the scanner's workers from
// running out of handles on large trees.
const MinFileDescriptors = 1024

// CheckFileDescriptors checks the soft RLIMIT_NOFILE.
func CheckFileDescriptors() CheckResult {
	r := CheckResult{Name: "file_descriptors", Required: true}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("%d (minimum: %d)", lim.Cur, MinFileDescriptors)
	if lim.Cur < MinFileDescriptors {
		r.Status = StatusFail
		r.Hint = "run 'ulimit -n 10240' to increase the limit"
		return r
	}
	r.Status = StatusPass
	return r
}
