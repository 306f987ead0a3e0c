package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archlinux/repod/internal/compress"
	"github.com/archlinux/repod/internal/syncdb"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repod.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[[repositories]]
name = "core"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "x86_64", cfg.Architecture)
	assert.Equal(t, compress.Gzip, cfg.Compression())
	assert.Equal(t, syncdb.DescV2, cfg.SyncDBSettings.DescVersion)
	assert.Equal(t, syncdb.FilesV1, cfg.SyncDBSettings.FilesVersion)

	repo := &cfg.Repositories[0]
	assert.Equal(t, "staging", repo.Staging)
	assert.Equal(t, "testing", repo.Testing)
	assert.Equal(t, "core", repo.StableLayer())
	assert.Equal(t, filepath.Join("management", "core", "x86_64", "core"), cfg.ManagementDir(repo, "core"))
	assert.Equal(t, filepath.Join("data", "pool", "package", "core"), cfg.PoolDir(repo))
	assert.Equal(t, filepath.Join("data", "repo", "package", "core", "x86_64", "testing"), cfg.LayerDir(repo, "testing"))
}

func TestLoadExample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repod.toml")
	require.NoError(t, WriteExample(path))
	cfg, err := Load(path)
	require.NoError(t, err)
	repo := &cfg.Repositories[0]
	assert.Equal(t, "core-debug", repo.DebugLayerFor("core"))
	assert.Equal(t, "", repo.DebugLayerFor("testing"))
}

func TestLoadRejectsDuplicateLayers(t *testing.T) {
	// Two layers of a repository may not resolve to the same directory.
	path := writeConfig(t, `
[[repositories]]
name = "core"
testing = "staging"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.IsType(t, &Error{}, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, content := range map[string]string{
		"bad compression": `database_compression = "rar"` + "\n[[repositories]]\nname = \"core\"\n",
		"bad verification": `package_verification = "gpg"` + "\n[[repositories]]\nname = \"core\"\n",
		"bad desc version": "[syncdb_settings]\ndesc_version = 3\n[[repositories]]\nname = \"core\"\n",
		"bad architecture": `architecture = "mips"` + "\n[[repositories]]\nname = \"core\"\n",
		"no repositories":  "architecture = \"x86_64\"\n",
		"bad lock timeout": `lock_timeout = "yes"` + "\n[[repositories]]\nname = \"core\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestFindRepository(t *testing.T) {
	path := writeConfig(t, `
[[repositories]]
name = "core"
architecture = "x86_64"

[[repositories]]
name = "core"
architecture = "aarch64"

[[repositories]]
name = "extra"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	repo, err := cfg.FindRepository("core", "aarch64")
	require.NoError(t, err)
	assert.Equal(t, "aarch64", repo.Architecture)

	_, err = cfg.FindRepository("core", "")
	assert.Error(t, err, "ambiguous name must error")

	repo, err = cfg.FindRepository("extra", "")
	require.NoError(t, err)
	assert.Equal(t, "x86_64", repo.Architecture)

	_, err = cfg.FindRepository("community", "")
	assert.Error(t, err)
}
