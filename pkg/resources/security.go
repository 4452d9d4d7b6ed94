package resources

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/logger"
)

var securityLog = logger.New("resources:security")

// CheckHost verifies that host is a member of the allow-list. Comparison is
// case-insensitive on the hostname only (no port).
func CheckHost(host string, allowed []string) error {
	hostname := strings.ToLower(host)
	if idx := strings.LastIndex(hostname, ":"); idx != -1 {
		hostname = hostname[:idx]
	}
	for _, a := range allowed {
		if hostname == strings.ToLower(a) {
			return nil
		}
	}
	securityLog.Printf("Host not in allow-list: %s", host)
	return fmt.Errorf("host %q: %w", host, ErrURINotAllowed)
}

// CheckLocalPath validates a filesystem path against the traversal policy:
// no ".." segments, no forbidden system prefixes, no suspicious infixes, and
// the resolved path must stay inside workingDir. It returns the cleaned
// absolute path on success.
func CheckLocalPath(path, workingDir string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path: %w", ErrPathTraversal)
	}

	// Reject ".." before any normalization so "a/../../b" cannot sneak
	// through filepath.Clean.
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			securityLog.Printf("Rejecting path with parent traversal: %s", path)
			return "", fmt.Errorf("path %q contains '..': %w", path, ErrPathTraversal)
		}
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(workingDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	for _, prefix := range constants.ForbiddenPathPrefixes {
		if resolved == prefix || strings.HasPrefix(resolved, prefix+string(filepath.Separator)) {
			securityLog.Printf("Rejecting path under forbidden prefix %s: %s", prefix, path)
			return "", fmt.Errorf("path %q under forbidden prefix %s: %w", path, prefix, ErrPathTraversal)
		}
	}

	normalized := filepath.ToSlash(resolved)
	for _, infix := range constants.SuspiciousPathInfixes {
		for _, segment := range strings.Split(normalized, "/") {
			if segment == infix {
				securityLog.Printf("Rejecting path containing %s: %s", infix, path)
				return "", fmt.Errorf("path %q contains %s: %w", path, infix, ErrPathTraversal)
			}
		}
	}

	if workingDir != "" {
		cleanWD := filepath.Clean(workingDir)
		rel, err := filepath.Rel(cleanWD, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			securityLog.Printf("Path escapes working directory: %s (resolves to %s)", path, resolved)
			return "", fmt.Errorf("path %q escapes working directory: %w", path, ErrPathTraversal)
		}
	}

	return resolved, nil
}
