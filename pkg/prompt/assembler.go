// Package prompt compiles descriptor bodies into final prompt text. The
// template surface is deliberately small: `{{path.to.value}}` lookups
// against the compilation context, `{{include: uri key=val}}` for compiled
// inclusion and `{{rawinclude: uri}}` for verbatim inclusion. There is no
// expression evaluation. Failures render as inline markers so the
// subprocess sees what went wrong; they never abort a dispatch.
package prompt

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/logger"
	"github.com/a5c-ai/runner/pkg/resources"
)

var log = logger.New("prompt:assembler")

// expressionPattern matches one {{...}} template expression.
var expressionPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Context is the value tree template lookups resolve against.
type Context map[string]any

// Merge returns a copy of the context with overlay entries applied on top.
func (c Context) Merge(overlay Context) Context {
	merged := make(Context, len(c)+len(overlay))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// Assembler compiles prompt templates, fetching included templates through
// the shared resource loader.
type Assembler struct {
	loader *resources.Loader
}

// NewAssembler builds an Assembler on top of the dispatch's loader.
func NewAssembler(loader *resources.Loader) *Assembler {
	return &Assembler{loader: loader}
}

// Compile renders body against tctx. baseURI anchors relative include
// references; pass the descriptor's source location.
func (a *Assembler) Compile(ctx context.Context, body, baseURI string, tctx Context) string {
	return a.compile(ctx, body, baseURI, tctx, 0, map[string]bool{})
}

func (a *Assembler) compile(ctx context.Context, body, baseURI string, tctx Context, depth int, active map[string]bool) string {
	return expressionPattern.ReplaceAllStringFunc(body, func(raw string) string {
		expr := strings.TrimSpace(expressionPattern.FindStringSubmatch(raw)[1])

		switch {
		case strings.HasPrefix(expr, "include:"):
			return a.include(ctx, strings.TrimPrefix(expr, "include:"), baseURI, tctx, depth, active)
		case strings.HasPrefix(expr, "rawinclude:"):
			return a.rawInclude(ctx, strings.TrimPrefix(expr, "rawinclude:"), baseURI)
		case expr == "base-prompt":
			// Inheritance-only token; anything left over stays verbatim.
			return raw
		default:
			if value, ok := lookup(tctx, expr); ok {
				return fmt.Sprintf("%v", value)
			}
			return raw
		}
	})
}

// include fetches, recursively compiles and renders another template. The
// included template sees the parent context overlaid with the directive's
// key=value parameters and the _includeSource/_includeDepth/_baseUri
// bookkeeping values.
func (a *Assembler) include(ctx context.Context, directive, baseURI string, tctx Context, depth int, active map[string]bool) string {
	uri, params := parseIncludeDirective(directive)
	if uri == "" {
		return errorMarker("include", directive, "missing uri")
	}
	if depth >= constants.MaxIncludeDepth {
		return errorMarker("include", uri, fmt.Sprintf("depth limit %d exceeded", constants.MaxIncludeDepth))
	}

	resolved, err := a.loader.ResolveRelative(uri, baseURI)
	if err != nil {
		return errorMarker("include", uri, err.Error())
	}
	if active[resolved] {
		log.Printf("Circular inclusion detected: %s", resolved)
		return errorMarker("include", resolved, "circular inclusion")
	}

	data, found, err := a.loader.Load(ctx, resolved)
	if err != nil {
		return errorMarker("include", resolved, err.Error())
	}
	if !found {
		return errorMarker("include", resolved, "not found")
	}

	childCtx := tctx.Merge(params).Merge(Context{
		"_includeSource": resolved,
		"_includeDepth":  depth + 1,
		"_baseUri":       baseURI,
	})

	active[resolved] = true
	defer delete(active, resolved)
	return a.compile(ctx, string(data), resolved, childCtx, depth+1, active)
}

// rawInclude fetches a template and returns it verbatim, uncompiled.
func (a *Assembler) rawInclude(ctx context.Context, directive, baseURI string) string {
	uri := strings.TrimSpace(directive)
	if uri == "" {
		return errorMarker("rawinclude", directive, "missing uri")
	}
	resolved, err := a.loader.ResolveRelative(uri, baseURI)
	if err != nil {
		return errorMarker("rawinclude", uri, err.Error())
	}
	data, found, err := a.loader.Load(ctx, resolved)
	if err != nil {
		return errorMarker("rawinclude", resolved, err.Error())
	}
	if !found {
		return errorMarker("rawinclude", resolved, "not found")
	}
	return string(data)
}

func errorMarker(kind, target, reason string) string {
	log.Printf("Template %s failed: target=%s, reason=%s", kind, target, reason)
	return fmt.Sprintf("[%s error: %s: %s]", kind, target, reason)
}

// parseIncludeDirective splits "uri key=val key2=\"quoted val\"" into the
// target URI and its parameter overlay.
func parseIncludeDirective(directive string) (string, Context) {
	fields := splitQuoted(strings.TrimSpace(directive))
	if len(fields) == 0 {
		return "", nil
	}
	uri := fields[0]
	params := make(Context)
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			continue
		}
		params[key] = strings.Trim(value, `"'`)
	}
	return uri, params
}

// splitQuoted splits on whitespace, keeping double-quoted runs together.
func splitQuoted(s string) []string {
	var fields []string
	var current strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			current.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t'):
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		fields = append(fields, current.String())
	}
	return fields
}

// lookup resolves a dotted path against nested string-keyed maps.
func lookup(tctx Context, path string) (any, bool) {
	var node any = map[string]any(tctx)
	for _, part := range strings.Split(path, ".") {
		switch m := node.(type) {
		case Context:
			next, ok := m[part]
			if !ok {
				return nil, false
			}
			node = next
		case map[string]any:
			next, ok := m[part]
			if !ok {
				return nil, false
			}
			node = next
		case map[string]string:
			next, ok := m[part]
			if !ok {
				return nil, false
			}
			node = next
		default:
			return nil, false
		}
	}
	return node, true
}
