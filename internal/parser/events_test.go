package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	content := `{"source":"claude","modelId":"claude-sonnet-4-5","timestampMs":1750000000000,"tokens":{"input":100,"output":50}}
{"source":"codex","modelId":"gpt-5","timestampMs":1750000100000,"tokens":{"input":30,"output":20},"cost":0.5}

not valid json at all
{"source":"","modelId":"gpt-5","timestampMs":1750000200000,"tokens":{"input":10}}
{"source":"claude","modelId":"claude-sonnet-4-5","timestampMs":0,"tokens":{"input":10}}
{"source":"claude","modelId":"claude-sonnet-4-5","timestampMs":1750000300000,"tokens":{}}
`
	path := writeFile(t, dir, "events.jsonl", content)

	events, err := ParseFile(path)
	require.NoError(t, err)

	// Blank, malformed, sourceless, timestampless, and tokenless lines skipped
	require.Len(t, events, 2)
	assert.Equal(t, "claude", events[0].Source)
	assert.Equal(t, int64(1750000000000), events[0].TimestampMs)
	assert.Equal(t, int64(150), events[0].Tokens.Sum())
	assert.Equal(t, "codex", events[1].Source)
	require.NotNil(t, events[1].Cost)
	assert.Equal(t, 0.5, *events[1].Cost)
}

func TestFindEventFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", "")
	writeFile(t, dir, "nested/b.jsonl", "")
	writeFile(t, dir, "ignored.txt", "")

	files, err := FindEventFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindEventFiles_MissingDir(t *testing.T) {
	files, err := FindEventFiles(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestParseAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.jsonl",
		`{"source":"claude","modelId":"claude-sonnet-4-5","timestampMs":1750000000000,"tokens":{"input":100}}`)
	writeFile(t, dir, "two.jsonl",
		`{"source":"gemini","modelId":"gemini-2.5-pro","timestampMs":1750000000000,"tokens":{"output":200}}`)

	events, err := ParseAll(dir)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
