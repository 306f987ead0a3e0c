// Package sigverify locates and verifies detached package signatures. The
// actual cryptography is delegated to an external verifier; the built-in
// strategies are "none" (unsigned repositories) and "pacman-key".
package sigverify

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/archlinux/repod"
)

// MissingError reports a package that should carry a detached signature
// but does not.
type MissingError struct {
	Artifact string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("signature missing for %s", e.Artifact)
}

// InvalidError reports a signature the verifier rejected.
type InvalidError struct {
	Artifact string
	Output   string
}

func (e *InvalidError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("signature invalid for %s", e.Artifact)
	}
	return fmt.Sprintf("signature invalid for %s: %s", e.Artifact, e.Output)
}

// Verifier checks one artifact. Implementations must be safe for
// concurrent use.
type Verifier interface {
	// Verify checks the artifact at path. sigPath is empty when no
	// signature file was found next to it.
	Verify(ctx context.Context, path, sigPath string) error
}

// Locate returns the path of the detached signature for the artifact, or
// "" when none exists.
func Locate(path string) string {
	sig := path + repod.SigSuffix
	if _, err := os.Stat(sig); err != nil {
		return ""
	}
	return sig
}

// None accepts everything and expects no signatures.
type None struct{}

func (None) Verify(ctx context.Context, path, sigPath string) error { return nil }

// PacmanKey verifies detached signatures by invoking pacman-key with a
// configured keyring. The invocation is bounded by Timeout.
type PacmanKey struct {
	// Keyring is passed via PACMAN_KEYRING_DIR when set.
	Keyring string

	// Timeout bounds one verifier invocation; zero means a minute.
	Timeout time.Duration
}

func (v *PacmanKey) Verify(ctx context.Context, path, sigPath string) error {
	if sigPath == "" {
		return &MissingError{Artifact: path}
	}
	timeout := v.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	verify := exec.CommandContext(ctx, "pacman-key", "--verify", sigPath)
	if v.Keyring != "" {
		verify.Env = append(os.Environ(), "PACMAN_KEYRING_DIR="+v.Keyring)
	}
	if out, err := verify.CombinedOutput(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &InvalidError{Artifact: path, Output: string(out)}
	}
	return nil
}

// ForConfig maps the package_verification configuration value to a
// Verifier.
func ForConfig(mode, keyring string) (Verifier, error) {
	switch mode {
	case "", "none":
		return None{}, nil
	case "pacman-key":
		return &PacmanKey{Keyring: keyring}, nil
	}
	return nil, fmt.Errorf("unknown package_verification %q", mode)
}
