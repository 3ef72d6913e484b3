package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/repotool/pkg/repotool/engine"
)

func TestJSONFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	report := &Report{Results: sampleResults(), Root: "/repo", Command: "validate", Elapsed: time.Second}
	require.NoError(t, (&JSONFormatter{}).Format(&buf, report))

	var doc document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "/repo", doc.Root)
	assert.Equal(t, "validate", doc.Command)
	assert.True(t, doc.Different)
	assert.Equal(t, []string{"./a.txt", "./docs/b.txt"}, doc.Missing)
	assert.Equal(t, []documentError{{Path: "./e.bin", Error: "boom"}}, doc.Errors)
	assert.Equal(t, []documentMove{{Hash: "MD5:H1", From: []string{"./old.txt"}, To: []string{"./new.txt"}}}, doc.Moved)
	assert.Equal(t, []documentGroup{{Hash: "MD5:X", Files: []string{"./d1", "./docs/d2"}}}, doc.Duplicates)
	assert.Equal(t, []string{"./tmp.swp"}, doc.Groom)
	assert.Equal(t, int64(1234), doc.Stats.FilesScanned)
	assert.Equal(t, "3.0 MiB", doc.Stats.BytesHashedHuman)
	assert.Equal(t, "1s", doc.Stats.Duration)
}

func TestJSONFormatter_EmptyListsAreArrays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, &Report{Results: &engine.Results{}, Root: "/repo"}))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))

	for _, key := range []string{"missing", "changed", "new", "errors", "moved", "duplicates", "groom", "dir_errors"} {
		assert.Equal(t, []any{}, raw[key], key)
	}
	assert.Equal(t, false, raw["different"])
	assert.NotContains(t, raw, "command")
}

func TestYAMLFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	report := &Report{Results: sampleResults(), Root: "/repo", IgnoreDate: true}
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, report))

	var doc document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "/repo", doc.Root)
	assert.True(t, doc.IgnoreDate)
	assert.Equal(t, []string{"./c.txt"}, doc.Changed)
	assert.Equal(t, []documentError{{Path: "./locked/", Error: "permission denied"}}, doc.DirErrors)
	assert.Contains(t, buf.String(), "last_modified_differs: []")
}
