package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "resources")
	v, err := New(dir, "apple")
	require.NoError(t, err)

	path, err := v.WriteJSON([]byte(`{"file":"abc","test":[1,2,3],"url":"a&b"}`), "cycle 3", "_response")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "apple_response.json"), path)

	doc, err := v.LoadJSON("_response")
	require.NoError(t, err)
	assert.Equal(t, "abc", doc["file"])
	assert.Equal(t, "cycle 3", doc["metadata"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"a&b"`)
}

func TestWriteJSONOverwrites(t *testing.T) {
	v, err := New(t.TempDir(), "")
	require.NoError(t, err)

	_, err = v.WriteJSON([]byte(`{"n":1}`), "", "")
	require.NoError(t, err)
	_, err = v.WriteJSON([]byte(`{"n":2}`), "", "")
	require.NoError(t, err)

	doc, err := v.LoadJSON("")
	require.NoError(t, err)
	assert.Equal(t, float64(2), doc["n"])
}

func TestWriteJSONRejectsNonObjects(t *testing.T) {
	v, err := New(t.TempDir(), "x")
	require.NoError(t, err)

	_, err = v.WriteJSON([]byte(`[1,2]`), "", "")
	assert.Error(t, err)
	_, err = v.WriteJSON([]byte(`null`), "", "")
	assert.Error(t, err)
}

func TestWriteText(t *testing.T) {
	v, err := New(t.TempDir(), "apple")
	require.NoError(t, err)

	_, err = v.WriteText("Store A, Store B", "2/5 stores", "_snapshot")
	require.NoError(t, err)

	text, err := v.LoadText("_snapshot")
	require.NoError(t, err)
	assert.Equal(t, "Store A, Store B\n2/5 stores", text)
}
