package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_AppendCommandWritesBothLogs(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root, uuid.New())

	require.NoError(t, d.AppendCommand("nmap -sV target", time.Unix(0, 0)))
	require.NoError(t, d.AppendCommand("curl target/admin", time.Unix(1, 0)))

	logBytes, err := os.ReadFile(filepath.Join(d.Path(), "commands.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logBytes), "nmap -sV target")
	assert.Contains(t, string(logBytes), "curl target/admin")

	timeBytes, err := os.ReadFile(filepath.Join(d.Path(), "commands.time"))
	require.NoError(t, err)
	assert.Equal(t, 2, len(strings.Fields(string(timeBytes))))
}

func TestDir_ArtifactPathRejectsTraversal(t *testing.T) {
	d := NewDir(t.TempDir(), uuid.New())

	_, err := d.ArtifactPath("../../etc/passwd")
	assert.Error(t, err)

	p, err := d.ArtifactPath("screenshots/exploit.png")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(p))

	require.NoError(t, os.WriteFile(p, []byte("png"), 0o600))
}

func TestDir_RemoveDeletesTree(t *testing.T) {
	d := NewDir(t.TempDir(), uuid.New())
	require.NoError(t, d.Ensure())
	require.NoError(t, d.Remove())

	_, err := os.Stat(d.Path())
	assert.True(t, os.IsNotExist(err))
}
