// Package config loads and validates the repod TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/archlinux/repod"
	"github.com/archlinux/repod/internal/compress"
	"github.com/archlinux/repod/internal/syncdb"
)

// Error reports an invalid configuration.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "configuration: " + e.Msg }

func errorf(format string, args ...interface{}) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// SyncDBSettings selects the sync database schema versions.
type SyncDBSettings struct {
	DescVersion  int `toml:"desc_version"`
	FilesVersion int `toml:"files_version"`
}

// ManagementRepo locates the descriptor tree.
type ManagementRepo struct {
	Directory string `toml:"directory"`
}

// Repository configures one repository and its layer directory names.
type Repository struct {
	Name         string `toml:"name"`
	Architecture string `toml:"architecture"`

	// Layer directory names. Staging and Testing default to "staging" and
	// "testing"; the stable layer is named after the repository.
	Staging      string `toml:"staging"`
	Testing      string `toml:"testing"`
	Debug        string `toml:"debug"`
	StagingDebug string `toml:"staging_debug"`
	TestingDebug string `toml:"testing_debug"`

	// Shared directories. PackagePool is resolved against the data root
	// when relative (see PoolDir); SourcePool and Archiving are used as
	// given.
	PackagePool string `toml:"package_pool"`
	SourcePool  string `toml:"source_pool"`
	Archiving   string `toml:"archiving"`
}

// Config is the root of the TOML document.
type Config struct {
	Architecture           string `toml:"architecture"`
	DatabaseCompression    string `toml:"database_compression"`
	PackageVerification    string `toml:"package_verification"`
	Keyring                string `toml:"keyring"`
	BuildRequirementsExist bool   `toml:"build_requirements_exist"`
	LockTimeout            string `toml:"lock_timeout"`

	SyncDBSettings SyncDBSettings `toml:"syncdb_settings"`
	ManagementRepo ManagementRepo `toml:"management_repo"`
	Repositories   []Repository   `toml:"repositories"`

	// DataRoot anchors pool and repository directories; defaults to "data"
	// next to the management directory.
	DataRoot string `toml:"data_root"`

	compression compress.Algorithm
	lockTimeout time.Duration
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, &Error{Msg: err.Error()}
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Architecture == "" {
		c.Architecture = "x86_64"
	}
	if c.DatabaseCompression == "" {
		c.DatabaseCompression = "gz"
	}
	algo, err := compress.ParseAlgorithm(c.DatabaseCompression)
	if err != nil {
		return &Error{Msg: err.Error()}
	}
	c.compression = algo
	if c.SyncDBSettings.DescVersion == 0 {
		c.SyncDBSettings.DescVersion = syncdb.DescV2
	}
	if c.SyncDBSettings.FilesVersion == 0 {
		c.SyncDBSettings.FilesVersion = syncdb.FilesV1
	}
	if c.ManagementRepo.Directory == "" {
		c.ManagementRepo.Directory = "management"
	}
	if c.DataRoot == "" {
		c.DataRoot = "data"
	}
	if c.LockTimeout != "" {
		d, err := time.ParseDuration(c.LockTimeout)
		if err != nil || d < 0 {
			return errorf("lock_timeout %q is not a duration", c.LockTimeout)
		}
		c.lockTimeout = d
	}
	for i := range c.Repositories {
		repo := &c.Repositories[i]
		if repo.Architecture == "" {
			repo.Architecture = c.Architecture
		}
		if repo.Staging == "" {
			repo.Staging = "staging"
		}
		if repo.Testing == "" {
			repo.Testing = "testing"
		}
		if repo.PackagePool == "" {
			repo.PackagePool = filepath.Join("pool", "package", repo.Name)
		}
		if repo.SourcePool == "" {
			repo.SourcePool = filepath.Join("pool", "source", repo.Name)
		}
	}
	return nil
}

func (c *Config) validate() error {
	if !repod.ValidArchitecture(c.Architecture) {
		return errorf("unknown architecture %q", c.Architecture)
	}
	if c.SyncDBSettings.DescVersion != syncdb.DescV1 && c.SyncDBSettings.DescVersion != syncdb.DescV2 {
		return errorf("syncdb_settings.desc_version must be 1 or 2, got %d", c.SyncDBSettings.DescVersion)
	}
	if c.SyncDBSettings.FilesVersion != syncdb.FilesV1 {
		return errorf("syncdb_settings.files_version must be 1, got %d", c.SyncDBSettings.FilesVersion)
	}
	switch c.PackageVerification {
	case "", "none", "pacman-key":
	default:
		return errorf("package_verification must be none or pacman-key, got %q", c.PackageVerification)
	}
	if len(c.Repositories) == 0 {
		return errorf("no repositories configured")
	}

	// Resolved layer paths must be globally unique across repositories;
	// pool and archive directories may be shared.
	seenRepo := make(map[string]string)
	seenLayer := make(map[string]string)
	for i := range c.Repositories {
		repo := &c.Repositories[i]
		if repo.Name == "" {
			return errorf("repository %d has no name", i)
		}
		if !repod.ValidArchitecture(repo.Architecture) {
			return errorf("repository %s: unknown architecture %q", repo.Name, repo.Architecture)
		}
		key := repo.Name + "/" + repo.Architecture
		if prev, ok := seenRepo[key]; ok {
			return errorf("repository %s duplicates %s", key, prev)
		}
		seenRepo[key] = key
		for _, layer := range repo.LayerNames() {
			path := c.LayerDir(repo, layer)
			if prev, ok := seenLayer[path]; ok {
				return errorf("layer directory %s of %s already used by %s", path, key, prev)
			}
			seenLayer[path] = key
		}
	}
	return nil
}

// Compression returns the parsed database_compression value.
func (c *Config) Compression() compress.Algorithm { return c.compression }

// LockTimeoutDuration returns the parsed lock_timeout; zero means
// fail-fast.
func (c *Config) LockTimeoutDuration() time.Duration { return c.lockTimeout }

// FindRepository resolves a repository by name and architecture. An empty
// arch selects the sole architecture carrying that name, erroring on
// ambiguity.
func (c *Config) FindRepository(name, arch string) (*Repository, error) {
	var found *Repository
	for i := range c.Repositories {
		repo := &c.Repositories[i]
		if repo.Name != name {
			continue
		}
		if arch != "" && repo.Architecture != arch {
			continue
		}
		if found != nil {
			return nil, errorf("repository %s exists for multiple architectures, specify one", name)
		}
		found = repo
	}
	if found == nil {
		return nil, errorf("repository %s/%s not configured", name, arch)
	}
	return found, nil
}

// LayerNames returns all layer directory names of the repository, the
// stable layer (named after the repository) first.
func (r *Repository) LayerNames() []string {
	names := []string{r.Name, r.Testing, r.Staging}
	for _, debug := range []string{r.Debug, r.TestingDebug, r.StagingDebug} {
		if debug != "" {
			names = append(names, debug)
		}
	}
	return names
}

// StableLayer returns the stable layer's directory name.
func (r *Repository) StableLayer() string { return r.Name }

// DebugLayerFor maps a layer to its parallel debug series, or "" when the
// repository has none configured.
func (r *Repository) DebugLayerFor(layer string) string {
	switch layer {
	case r.Name:
		return r.Debug
	case r.Testing:
		return r.TestingDebug
	case r.Staging:
		return r.StagingDebug
	}
	return ""
}

// ManagementDir returns the descriptor directory for one layer of the
// repository: <management>/<repo>/<arch>/<layer>.
func (c *Config) ManagementDir(r *Repository, layer string) string {
	return filepath.Join(c.ManagementRepo.Directory, r.Name, r.Architecture, layer)
}

// PoolDir returns the package pool directory of the repository.
func (c *Config) PoolDir(r *Repository) string {
	pool := r.PackagePool
	if !filepath.IsAbs(pool) {
		pool = filepath.Join(c.DataRoot, pool)
	}
	return pool
}

// LayerDir returns the repository directory of one layer:
// <data>/repo/package/<repo>/<arch>/<layer>.
func (c *Config) LayerDir(r *Repository, layer string) string {
	return filepath.Join(c.DataRoot, "repo", "package", r.Name, r.Architecture, layer)
}

// LockPath returns the advisory lock file for the repository, kept in the
// management root so every process agrees on it.
func (c *Config) LockPath(r *Repository) string {
	return filepath.Join(c.ManagementRepo.Directory, fmt.Sprintf(".%s-%s.lock", r.Name, r.Architecture))
}

// Resolve makes all directories absolute relative to base (the directory
// containing the configuration file).
func (c *Config) Resolve(base string) {
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.ManagementRepo.Directory = abs(c.ManagementRepo.Directory)
	c.DataRoot = abs(c.DataRoot)
}

// WriteExample writes an example configuration to path.
func WriteExample(path string) error {
	const example = `architecture = "x86_64"
database_compression = "gz"
package_verification = "none"
build_requirements_exist = false

[syncdb_settings]
desc_version = 2
files_version = 1

[management_repo]
directory = "management"

[[repositories]]
name = "core"
debug = "core-debug"
`
	return os.WriteFile(path, []byte(example), 0644)
}
