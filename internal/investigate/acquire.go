package investigate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Acquisition defaults.
const (
	DefaultCloneDepth   = 50
	DefaultCloneTimeout = 120 * time.Second
)

// DefaultAllowedHosts are the git hosts remote targets may point at.
var DefaultAllowedHosts = []string{"github.com", "gitlab.com"}

// AcquireConfig controls how a repository target is made available locally.
type AcquireConfig struct {
	AllowedHosts []string
	AllowLocal   bool
	Depth        int
	Timeout      time.Duration
	// Git is the git executable; "git" when empty.
	Git string
}

func (c AcquireConfig) withDefaults() AcquireConfig {
	if len(c.AllowedHosts) == 0 {
		c.AllowedHosts = DefaultAllowedHosts
	}
	if c.Depth <= 0 {
		c.Depth = DefaultCloneDepth
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultCloneTimeout
	}
	if c.Git == "" {
		c.Git = "git"
	}
	return c
}

// Checkout is a locally available copy of the target repository.
type Checkout struct {
	Dir   string
	Local bool
	clean func()
}

// Close removes a cloned checkout. Local directories are left untouched.
func (c *Checkout) Close() {
	if c != nil && c.clean != nil {
		c.clean()
	}
}

// ValidateTarget checks a remote target against the host allowlist. Only
// https URLs with an owner/repo path are accepted.
func ValidateTarget(target string, allowed []string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHostNotAllowed, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, u.Scheme)
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, target)
	}
	host := strings.ToLower(u.Hostname())
	ok := false
	for _, h := range allowed {
		if host == strings.ToLower(h) {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" || strings.HasPrefix(parts[0], "-") {
		return fmt.Errorf("%w: path %q is not owner/repo", ErrHostNotAllowed, u.Path)
	}
	return nil
}

// Acquire makes target available on disk. Remote targets are shallow-cloned
// into a fresh temporary directory removed by Checkout.Close.
func Acquire(ctx context.Context, target string, cfg AcquireConfig) (*Checkout, error) {
	cfg = cfg.withDefaults()

	if info, err := os.Stat(target); err == nil && info.IsDir() {
		if !cfg.AllowLocal {
			return nil, fmt.Errorf("%w: %s", ErrLocalNotAllowed, target)
		}
		abs, err := filepath.Abs(target)
		if err != nil {
			return nil, err
		}
		return &Checkout{Dir: abs, Local: true}, nil
	}

	if err := ValidateTarget(target, cfg.AllowedHosts); err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "auditor-clone-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %v", ErrCloneFailed, err)
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }
	dir := filepath.Join(tmp, "repo")

	cloneCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	cmd := exec.CommandContext(cloneCtx, cfg.Git, "clone", "--depth", fmt.Sprint(cfg.Depth), "--", target, dir)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		switch {
		case errors.Is(cloneCtx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: timed out after %s", ErrCloneFailed, cfg.Timeout)
		case errors.Is(err, exec.ErrNotFound):
			return nil, fmt.Errorf("%w: git executable not found", ErrCloneFailed)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrCloneFailed, msg)
	}
	return &Checkout{Dir: dir, clean: cleanup}, nil
}
