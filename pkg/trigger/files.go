package trigger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/githubapi"
	"github.com/a5c-ai/runner/pkg/resources"
)

var prMergePatterns = compileMergePatterns()

func compileMergePatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(constants.PRMergePatterns))
	for _, p := range constants.PRMergePatterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	return patterns
}

// PRNumberFromMessage extracts the pull-request number referenced by a merge
// commit message, if any. First matching pattern wins.
func PRNumberFromMessage(message string) (int, bool) {
	for _, pattern := range prMergePatterns {
		if m := pattern.FindStringSubmatch(message); m != nil {
			var n int
			if _, err := fmt.Sscanf(m[1], "%d", &n); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// prFilesCache memoizes changed-file lists per pull request number.
type prFilesCache struct {
	mu      sync.Mutex
	entries map[int]prFilesEntry
	now     func() time.Time
}

type prFilesEntry struct {
	files   []string
	expires time.Time
}

func newPRFilesCache() *prFilesCache {
	return &prFilesCache{entries: make(map[int]prFilesEntry), now: time.Now}
}

func (c *prFilesCache) get(number int) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[number]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.files, true
}

func (c *prFilesCache) set(number int, files []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[number] = prFilesEntry{files: files, expires: c.now().Add(constants.PRFilesCacheTTL)}
}

// lazyFiles produces the event's changed-file list at most once per pass,
// and only when a path matcher actually needs it.
type lazyFiles struct {
	once  sync.Once
	files []string
	eng   *Engine
	ev    *EventContext
}

func (l *lazyFiles) get(ctx context.Context) []string {
	l.once.Do(func() {
		files, err := l.eng.changedFiles(ctx, l.ev)
		if err != nil {
			log.Printf("Changed-file resolution failed: %v", err)
		}
		l.files = files
	})
	return l.files
}

// ChangedFiles exposes the event's derived file list to prompt compilation.
// Resolution failures degrade to an empty list.
func (e *Engine) ChangedFiles(ctx context.Context, ev *EventContext) []string {
	files, err := e.changedFiles(ctx, ev)
	if err != nil {
		log.Printf("Changed-file resolution failed: %v", err)
		return nil
	}
	return files
}

// changedFiles derives the file list per the event kind: pull-request events
// and detected PR merges ask the host API; plain pushes use the head commit's
// own file sets. A rate-limited PR lookup falls back to the commit-derived
// list rather than failing the pass.
func (e *Engine) changedFiles(ctx context.Context, ev *EventContext) ([]string, error) {
	owner, repo := ev.OwnerRepo()

	switch ev.Kind {
	case "pull_request":
		if ev.PRNumber == 0 {
			return nil, nil
		}
		return e.prFiles(ctx, owner, repo, ev.PRNumber)

	case "push":
		head := ev.HeadCommit()
		if head == nil {
			return nil, nil
		}
		if number, ok := PRNumberFromMessage(head.Message); ok {
			files, err := e.prFiles(ctx, owner, repo, number)
			if err == nil {
				return files, nil
			}
			// A merge message can reference a PR from another repository
			// or a deleted one; such lookups degrade like rate limits.
			if errors.Is(err, resources.ErrRateLimited) || githubapi.IsNotFound(err) {
				log.Printf("PR #%d files unavailable (%v); falling back to commit file list", number, err)
				return commitFileUnion(head), nil
			}
			return nil, err
		}
		return commitFileUnion(head), nil

	default:
		return nil, nil
	}
}

func (e *Engine) prFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	if files, ok := e.prCache.get(number); ok {
		log.Printf("PR files cache hit: #%d", number)
		return files, nil
	}
	prFiles, err := e.client.ListPRFiles(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to list files for PR #%d: %w", number, err)
	}
	files := make([]string, 0, len(prFiles))
	for _, f := range prFiles {
		files = append(files, f.Filename)
	}
	e.prCache.set(number, files)
	return files, nil
}

func commitFileUnion(c *CommitRef) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{c.Added, c.Modified, c.Removed} {
		for _, f := range group {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
