package descriptor

import (
	"fmt"
	"strings"
)

// NormalizeStringList accepts either a YAML sequence or a comma-separated
// string (with optional surrounding brackets and quoted items) and returns a
// flat string slice. Empty items are dropped.
//
//	events: [push, pull_request]
//	events: "push, pull_request"
//	events:
//	  - push
//	  - pull_request
//
// all normalize to the same sequence.
func NormalizeStringList(v any) ([]string, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprintf("%v", item)
			}
			s = trimListItem(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []string:
		out := make([]string, 0, len(value))
		for _, item := range value {
			item = trimListItem(item)
			if item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	case string:
		return splitListString(value), nil
	default:
		return nil, fmt.Errorf("expected sequence or string, got %T", v)
	}
}

func splitListString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	// Optional bracket wrapper: "[a, b]" behaves like "a, b".
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = s[1 : len(s)-1]
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = trimListItem(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func trimListItem(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}
