package descriptor

import (
	"strings"

	"github.com/a5c-ai/runner/pkg/constants"
)

// unionListFields are merged base-first with deduplication; every other
// field is child-wins.
var unionListFields = map[string]bool{
	"events":      true,
	"labels":      true,
	"branches":    true,
	"paths":       true,
	"mcp_servers": true,
}

// MergeFrontmatter deep-merges a resolved base header under a child header.
// Scalar fields: child wins when set. Union list fields: base entries first,
// child entries appended, duplicates dropped (first-seen order). envs: per
// key, child wins. The "from" key never survives a merge.
func MergeFrontmatter(base, child map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(child))
	for k, v := range base {
		merged[k] = v
	}

	for k, v := range child {
		switch {
		case unionListFields[k]:
			merged[k] = unionLists(merged[k], v)
		case k == "envs":
			merged[k] = mergeEnvs(merged[k], v)
		default:
			merged[k] = v
		}
	}

	delete(merged, "from")
	return merged
}

func unionLists(base, child any) []string {
	baseList, _ := NormalizeStringList(base)
	childList, _ := NormalizeStringList(child)

	seen := make(map[string]bool, len(baseList)+len(childList))
	out := make([]string, 0, len(baseList)+len(childList))
	for _, item := range baseList {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	for _, item := range childList {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func mergeEnvs(base, child any) map[string]any {
	out := make(map[string]any)
	if baseMap, ok := base.(map[string]any); ok {
		for k, v := range baseMap {
			out[k] = v
		}
	}
	if childMap, ok := child.(map[string]any); ok {
		for k, v := range childMap {
			out[k] = v
		}
	}
	return out
}

// MergeBodies combines the resolved base body with the child body. When the
// child contains the {{base-prompt}} token the base body is substituted in
// place; otherwise a non-empty child body wins outright and an empty child
// body falls back to the base.
func MergeBodies(baseBody, childBody string) string {
	if strings.Contains(childBody, constants.BasePromptToken) {
		return strings.ReplaceAll(childBody, constants.BasePromptToken, baseBody)
	}
	if childBody != "" {
		return childBody
	}
	return baseBody
}
