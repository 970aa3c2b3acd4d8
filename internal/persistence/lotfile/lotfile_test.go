package lotfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluebear.game/internal/lot"
)

func TestWriteRead_PlainAndCompressed(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "lot", "testdata", "small.json"))
	require.NoError(t, err)

	for _, name := range []string{"lot.json", "lot.json.zst"} {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, WriteRaw(p, raw))

			got, err := Read(p)
			require.NoError(t, err)
			assert.Equal(t, raw, got)

			onDisk, err := os.ReadFile(p)
			require.NoError(t, err)
			if Compressed(p) {
				assert.NotEqual(t, raw, onDisk)
				// zstd frame magic
				assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, onDisk[:4])
			} else {
				assert.Equal(t, raw, onDisk)
			}
		})
	}
}

func TestWrite_Document(t *testing.T) {
	x, y, s := 1, 1, 1
	doc := &lot.Document{FloorX: &x, FloorY: &y, Stories: &s}
	p := filepath.Join(t.TempDir(), "doc.json.zst")
	require.NoError(t, Write(p, doc))

	got, err := Read(p)
	require.NoError(t, err)
	assert.Contains(t, string(got), `"floorx": 1`)

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json.zst")
	require.NoError(t, os.WriteFile(bad, []byte("not zstd"), 0o644))
	_, err = Read(bad)
	require.Error(t, err)
}
