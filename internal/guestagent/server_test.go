package guestagent

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTokenRejectsEmptyAndWrongTokens(t *testing.T) {
	s := &Server{token: "real-token"}
	assert.False(t, s.validToken(""))
	assert.False(t, s.validToken("wrong-token"))
	assert.True(t, s.validToken("real-token"))
}

func TestUploadProjectRejectsOversizeBundle(t *testing.T) {
	huge := make([]byte, MaxBundleSize+1)
	encoded := base64.StdEncoding.EncodeToString(huge)

	s := &Server{token: "t"}
	resp := s.uploadProject(encoded)

	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidArgument, resp.Error.Code)
}

func TestUploadProjectRejectsMalformedBase64(t *testing.T) {
	s := &Server{token: "t"}
	resp := s.uploadProject("not-base64!!!")
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidArgument, resp.Error.Code)
}

func TestExtractTarGzRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	// A byte slice that is not a gzip stream is refused outright.
	err := extractTarGz([]byte("not a gzip stream"), filepath.Join(dir, "project"))
	assert.Error(t, err)

	// A valid archive whose entry climbs out of the project directory
	// is refused, and nothing is written outside it.
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	payload := []byte("pwned")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0o600, Size: int64(len(payload)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	err = extractTarGz(buf.Bytes(), filepath.Join(dir, "project"))
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
