package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/store"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entries.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCache_PutThenList(t *testing.T) {
	db := tempDB(t)
	file := writeFile(t, `[{"key":"b","data":{"name":"Depot"}},{"key":"a","data":[1,2]}]`)

	out, err := execute(t, "cache", "put", "sites", file, "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Replaced sites with 2 entries\n", out)

	out, err = execute(t, "cache", "list", "sites", "--db", db, "--format", "json")
	require.NoError(t, err)

	var entries []store.CacheEntry
	decode(t, out, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.JSONEq(t, `[1,2]`, string(entries[0].Data))
	assert.Equal(t, "b", entries[1].Key)
	assert.NotZero(t, entries[1].CachedAt)
}

func TestCache_PutReplacesCollection(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "cache", "put", "sites", writeFile(t, `[{"key":"a","data":1},{"key":"b","data":2}]`), "--db", db)
	require.NoError(t, err)

	cmd := NewRootCommand()
	cmd.SetIn(strings.NewReader(`[{"key":"c","data":3}]`))
	out := &strings.Builder{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"cache", "put", "sites", "-", "--db", db})
	require.NoError(t, cmd.Execute())

	text, err := execute(t, "cache", "list", "sites", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "c\t3\n", text)
}

func TestCache_ListEmpty(t *testing.T) {
	out, err := execute(t, "cache", "list", "nothing", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Equal(t, "nothing is empty\n", out)
}

func TestCache_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"not an array", `{"key":"a"}`, "entries must be a JSON array"},
		{"unknown field", `[{"key":"a","data":1,"extra":true}]`, "entries must be a JSON array"},
		{"missing key", `[{"data":1}]`, "entry 0: key is required"},
		{"missing data", `[{"key":"a"}]`, `entry "a": data is required`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "cache", "put", "c", writeFile(t, tt.content), "--db", tempDB(t))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCache_RequiresSQLite(t *testing.T) {
	_, err := execute(t, "cache", "list", "c", "--store", "badger", "--db", filepath.Join(t.TempDir(), "kv"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "requires the sqlite store")
}
