package scaffold

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keerthana203/cerina-foundry/internal/config"
)

func TestInitialize(t *testing.T) {
	t.Run("writes a config matching the defaults", func(t *testing.T) {
		dir := t.TempDir()
		var buf bytes.Buffer

		require.NoError(t, Initialize(dir, false, &buf))

		cfg, err := config.Load(filepath.Join(dir, "foundry.yml"))
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "foundry.yml")
		require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\n"), 0644))

		err := Initialize(dir, false, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already initialized")

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "version: \"1.0\"\n", string(content))
	})

	t.Run("force replaces existing file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "foundry.yml"), []byte("garbage: ["), 0644))

		var buf bytes.Buffer
		require.NoError(t, Initialize(dir, true, &buf))
		assert.Contains(t, buf.String(), "Replacing existing foundry.yml")
	})
}

func TestCheckExisting(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckExisting(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "foundry.yml"), nil, 0644))
	assert.ErrorContains(t, CheckExisting(dir), "foundry.yml")
}

func TestPrintSuccess(t *testing.T) {
	var buf bytes.Buffer
	PrintSuccess(&buf)
	assert.Contains(t, buf.String(), "foundry serve")
}
