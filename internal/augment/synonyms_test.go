package augment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandAppendsRelatedTerms(t *testing.T) {
	e := newExpander(map[string][]string{
		"database": {"sql", "schema"},
	}, 4)

	got := e.Expand("optimize the database layer")

	assert.True(t, strings.HasPrefix(got, "optimize the database layer"), "original query must be preserved verbatim")
	assert.Contains(t, got, "sql")
	assert.Contains(t, got, "schema")
}

func TestExpandNoMatchReturnsOriginal(t *testing.T) {
	e := NewExpander(4)
	query := "translate this haiku"
	assert.Equal(t, query, e.Expand(query))
}

func TestExpandSkipsTermsAlreadyPresent(t *testing.T) {
	e := newExpander(map[string][]string{
		"database": {"sql", "schema"},
	}, 4)

	got := e.Expand("database sql tuning")

	assert.Equal(t, 1, strings.Count(got, "sql"))
	assert.Contains(t, got, "schema")
}

func TestExpandBoundedPerPhrase(t *testing.T) {
	e := newExpander(map[string][]string{
		"database": {"a1", "a2", "a3", "a4", "a5"},
	}, 2)

	got := e.Expand("database")

	added := strings.Fields(strings.TrimPrefix(got, "database"))
	assert.Len(t, added, 2)
}

func TestExpandDeterministicAcrossGroups(t *testing.T) {
	groups := map[string][]string{
		"error": {"failure"},
		"test":  {"coverage"},
	}
	a := newExpander(groups, 4).Expand("test the error path")
	b := newExpander(groups, 4).Expand("test the error path")
	assert.Equal(t, a, b)
}

func TestLoadExpanderMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("synonyms:\n  database: [postgres]\n  grpc: [protobuf]\n"), 0o600))

	e, err := LoadExpander(path, 4)
	require.NoError(t, err)

	assert.Contains(t, e.Expand("grpc issue"), "protobuf")
	got := e.Expand("database")
	assert.Contains(t, got, "postgres")
	assert.NotContains(t, got, "sql", "file entry overrides the built-in group")
}

func TestLoadExpanderMissingFileUsesDefaults(t *testing.T) {
	e, err := LoadExpander("/nonexistent/synonyms.yaml", 4)
	require.NoError(t, err)
	assert.Contains(t, e.Expand("kubernetes upgrade"), "k8s")
}

func TestLoadExpanderRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("synonyms: [not, a, map"), 0o600))

	_, err := LoadExpander(path, 4)
	assert.Error(t, err)
}
