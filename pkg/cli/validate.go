// Package cli implements the a5c command surface: validating descriptors,
// listing the registry and dispatching events from webhook payloads.
package cli

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/a5c-ai/runner/pkg/console"
	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/fileutil"
	"github.com/a5c-ai/runner/pkg/logger"
)

var validateLog = logger.New("cli:validate")

// ValidationStats aggregates one validation sweep.
type ValidationStats struct {
	Valid   int
	Invalid int
}

// ValidateAgents validates every descriptor under the agents directory and
// prints one line per file. The returned error is non-nil when any
// descriptor failed.
func ValidateAgents(workingDir string, out io.Writer) error {
	stats, err := validateAll(workingDir, out)
	if err != nil {
		return err
	}
	printValidationSummary(stats, out)
	if stats.Invalid > 0 {
		return fmt.Errorf("%d descriptor(s) failed validation", stats.Invalid)
	}
	return nil
}

func validateAll(workingDir string, out io.Writer) (*ValidationStats, error) {
	root := filepath.Join(workingDir, constants.AgentsDir)
	if !fileutil.DirExists(root) {
		return nil, fmt.Errorf("agents directory does not exist: %s", root)
	}

	stats := &ValidationStats{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), constants.AgentFileSuffix) {
			return nil
		}
		validateFile(workingDir, path, stats, out)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return stats, nil
}

func validateFile(workingDir, path string, stats *ValidationStats, out io.Writer) {
	display := path
	if rel, err := filepath.Rel(workingDir, path); err == nil && !strings.HasPrefix(rel, "..") {
		display = rel
	}

	data, err := os.ReadFile(path)
	if err != nil {
		stats.Invalid++
		fmt.Fprintln(out, console.FormatErrorMessage(fmt.Sprintf("%s: %v", display, err)))
		return
	}

	d, err := descriptor.Parse(string(data), descriptor.Source{Kind: descriptor.SourceLocal, Path: display})
	if err != nil {
		stats.Invalid++
		fmt.Fprintln(out, console.FormatErrorMessage(fmt.Sprintf("%s: %v", display, err)))
		return
	}
	if err := descriptor.Validate(d); err != nil {
		stats.Invalid++
		if verr, ok := err.(*descriptor.ValidationError); ok {
			fmt.Fprintln(out, console.FormatErrorMessage(fmt.Sprintf("%s: %d violation(s)", display, len(verr.Violations))))
			for _, v := range verr.Violations {
				fmt.Fprintln(out, console.FormatListItem(v.String()))
			}
		} else {
			fmt.Fprintln(out, console.FormatErrorMessage(fmt.Sprintf("%s: %v", display, err)))
		}
		return
	}

	stats.Valid++
	fmt.Fprintln(out, console.FormatSuccessMessage(fmt.Sprintf("%s: ok (id=%s)", display, d.ID)))
}

func printValidationSummary(stats *ValidationStats, out io.Writer) {
	fmt.Fprintln(out, console.FormatCountMessage(fmt.Sprintf("%d valid, %d invalid", stats.Valid, stats.Invalid)))
}

// WatchAndValidate runs an initial validation sweep and then re-validates on
// filesystem changes until interrupted.
func WatchAndValidate(workingDir string, out io.Writer) error {
	root := filepath.Join(workingDir, constants.AgentsDir)
	if !fileutil.DirExists(root) {
		return fmt.Errorf("agents directory does not exist: %s", root)
	}

	watcher, err := fsnotify.NewBufferedWatcher(100)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Windows needs a larger buffer to avoid event overflow in busy
	// directories.
	addWatchPath := func(path string) error {
		if runtime.GOOS == "windows" {
			return watcher.AddWith(path, fsnotify.WithBufferSize(64*1024))
		}
		return watcher.Add(path)
	}

	if err := addWatchPath(root); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", root, err)
	}
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() && path != root {
			if err := addWatchPath(path); err != nil {
				validateLog.Printf("Failed to watch subdirectory %s: %v", path, err)
			}
		}
		return nil
	})
	if walkErr != nil {
		validateLog.Printf("Failed to walk subdirectories: %v", walkErr)
	}

	fmt.Fprintln(out, console.FormatInfoMessage(fmt.Sprintf("Watching for descriptor changes in %s...", root)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if stats, err := validateAll(workingDir, out); err != nil {
		fmt.Fprintln(out, console.FormatWarningMessage(fmt.Sprintf("Initial validation failed: %v", err)))
	} else {
		printValidationSummary(stats, out)
	}

	const debounceDelay = 300 * time.Millisecond
	var debounceTimer *time.Timer
	var debounceMu sync.Mutex

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if event.Has(fsnotify.Chmod) {
				continue
			}
			if !strings.HasSuffix(event.Name, constants.AgentFileSuffix) {
				continue
			}
			validateLog.Printf("Detected change: %s (%s)", event.Name, event.Op.String())

			debounceMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				if stats, err := validateAll(workingDir, out); err != nil {
					fmt.Fprintln(out, console.FormatWarningMessage(fmt.Sprintf("Validation failed: %v", err)))
				} else {
					printValidationSummary(stats, out)
				}
			})
			debounceMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			validateLog.Printf("Watcher error: %v", err)

		case <-sigChan:
			debounceMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceMu.Unlock()
			fmt.Fprintln(out, console.FormatInfoMessage("Stopped watching"))
			return nil
		}
	}
}
