package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/fileutil"
)

// LoadLocal scans dir (relative to the loader's working directory) for
// descriptor files and registers every one that parses and validates.
// Malformed descriptors are logged and skipped; a missing directory is not
// an error.
func (r *Registry) LoadLocal(dir string) error {
	root := dir
	if !filepath.IsAbs(root) {
		root = filepath.Join(r.loader.WorkingDir(), dir)
	}
	if !fileutil.DirExists(root) {
		log.Printf("Agents directory absent: %s", root)
		return nil
	}

	var loaded, skipped int
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), constants.AgentFileSuffix) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		sourcePath := path
		if rel, relErr := filepath.Rel(r.loader.WorkingDir(), path); relErr == nil && !strings.HasPrefix(rel, "..") {
			sourcePath = rel
		}
		source := descriptor.Source{Kind: descriptor.SourceLocal, Path: sourcePath}

		d, err := descriptor.Parse(string(data), source)
		if err != nil {
			log.Printf("Skipping %s: %v", sourcePath, err)
			skipped++
			return nil
		}
		if err := descriptor.Validate(d); err != nil {
			log.Printf("Skipping %s: %v", sourcePath, err)
			skipped++
			return nil
		}
		if err := r.Add(d); err != nil {
			log.Printf("Skipping %s: %v", sourcePath, err)
			skipped++
			return nil
		}
		loaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", root, err)
	}

	log.Printf("Local scan complete: dir=%s, loaded=%d, skipped=%d", dir, loaded, skipped)
	return nil
}
