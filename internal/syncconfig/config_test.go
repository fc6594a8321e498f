package syncconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseFSSPreservesOrderAndSkipsBadLines(t *testing.T) {
	path := writeConfig(t, "\n/src/a /tgt/a\n  \nbadline\n/src/b /tgt/b\n")
	result, err := ParseFSS(path)
	require.NoError(t, err)

	require.Len(t, result.Entries, 2)
	assert.Equal(t, "/src/a", result.Entries[0].SourceDir)
	assert.Equal(t, "/src/b", result.Entries[1].SourceDir)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 4, result.Skipped[0].LineNo)
}

func TestParseNFSEndpoints(t *testing.T) {
	path := writeConfig(t, "/s@host1:9001 /t@host2:9002\n")
	entries, err := ParseNFS(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "/s", e.SourceDir)
	assert.Equal(t, "host1", e.SourceHost)
	assert.Equal(t, 9001, e.SourcePort)
	assert.Equal(t, "/t", e.TargetDir)
	assert.Equal(t, "host2", e.TargetHost)
	assert.Equal(t, 9002, e.TargetPort)
}

func TestParseNFSAbortsOnMalformedLine(t *testing.T) {
	path := writeConfig(t, "/s@host1:9001 /t@host2:9002\nnot-a-valid-line\n")
	_, err := ParseNFS(path)
	require.Error(t, err)
}

func TestParseNFSRejectsNonPositivePort(t *testing.T) {
	path := writeConfig(t, "/s@host1:0 /t@host2:9002\n")
	_, err := ParseNFS(path)
	require.Error(t, err)
}
