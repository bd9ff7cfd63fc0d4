package evidence

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPack_ArchivesAllFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "commands.log"), []byte("id\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "screenshots"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "screenshots", "exploit.png"), []byte("png"), 0o600))

	var buf bytes.Buffer
	result, err := pack(dir, &buf)
	require.NoError(t, err)
	assert.Empty(t, result.skipped)

	names := readTarNames(t, buf.Bytes())
	assert.Contains(t, names, "commands.log")
	assert.Contains(t, names, "screenshots/exploit.png")
}

func TestPack_EmptyDirProducesEmptyArchive(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	result, err := pack(dir, &buf)
	require.NoError(t, err)
	assert.Empty(t, result.skipped)
	assert.Empty(t, readTarNames(t, buf.Bytes()))
}

func readTarNames(t *testing.T, data []byte) []string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, hdr.Name)
		}
	}
	return names
}
