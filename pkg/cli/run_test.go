package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/runner/pkg/dispatch"
)

func writePayloadFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunEventRequiresKind(t *testing.T) {
	var out bytes.Buffer
	err := RunEvent(context.Background(), RunOptions{PayloadPath: "x.json"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event kind is required")
}

func TestRunEventRequiresPayload(t *testing.T) {
	var out bytes.Buffer
	err := RunEvent(context.Background(), RunOptions{EventKind: "push"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload file is required")
}

func TestRunEventMissingPayloadFile(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "absent.json")
	err := RunEvent(context.Background(), RunOptions{EventKind: "push", PayloadPath: path}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event payload not found")
}

func TestRunEventRejectsInvalidPayload(t *testing.T) {
	path := writePayloadFile(t, "{broken")
	var out bytes.Buffer
	err := RunEvent(context.Background(), RunOptions{EventKind: "push", PayloadPath: path}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event payload")
}

func TestRunEventDispatchesAndPrintsSummary(t *testing.T) {
	t.Setenv("GH_TOKEN", "test-token")
	t.Setenv(dispatch.ConfigURIEnv, "")

	root := t.TempDir()
	writeDescriptorFile(t, root, "greeter.agent.md", `---
name: greeter
events: [push]
cli_command: "echo hello"
user_whitelist: [alice]
---
Say hello.
`)
	payload := writePayloadFile(t, `{
		"ref": "refs/heads/main",
		"repository": {"full_name": "org/repo"},
		"sender": {"login": "alice"}
	}`)

	var out bytes.Buffer
	err := RunEvent(context.Background(), RunOptions{
		WorkingDir:  root,
		EventKind:   "push",
		PayloadPath: payload,
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Dispatch summary: push on org/repo")
	assert.Contains(t, out.String(), "1 agent(s) run, 1 succeeded, 0 failed")
}

func TestRunEventFailingAgentReturnsError(t *testing.T) {
	t.Setenv("GH_TOKEN", "test-token")
	t.Setenv(dispatch.ConfigURIEnv, "")

	root := t.TempDir()
	writeDescriptorFile(t, root, "broken.agent.md", `---
name: broken
events: [push]
cli_command: "exit 1"
user_whitelist: [alice]
---
Always fails.
`)
	payload := writePayloadFile(t, `{
		"repository": {"full_name": "org/repo"},
		"sender": {"login": "alice"}
	}`)

	var out bytes.Buffer
	err := RunEvent(context.Background(), RunOptions{
		WorkingDir:  root,
		EventKind:   "push",
		PayloadPath: payload,
	}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 agent run(s) failed")
}
