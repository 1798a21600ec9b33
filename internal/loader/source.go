package loader

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/huitest/liota/internal/pkgtypes"
)

// SourceLoader loads pkgtypes.ExtSource artifacts by compiling them as a
// Go plugin (`go build -buildmode=plugin`) into a scratch directory and
// then delegating to FileLoader. This is the closest idiomatic-Go
// realization of "source files are recompiled and loaded fresh every
// time", since Go has no stable in-process source-interpretation
// facility.
type SourceLoader struct {
	// BuildTimeout bounds the `go build` invocation. Zero means 30s.
	BuildTimeout time.Duration
	inner        FileLoader
}

// Load implements pkgtypes.Loader.
func (l *SourceLoader) Load(path string, ext pkgtypes.Extension) (pkgtypes.Module, error) {
	if ext != pkgtypes.ExtSource {
		return nil, fmt.Errorf("loader: SourceLoader does not handle extension %q", ext)
	}

	timeout := l.BuildTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	tmpDir, err := os.MkdirTemp("", "gatewaypkgd-build-*")
	if err != nil {
		return nil, fmt.Errorf("loader: cannot create build scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	soPath := filepath.Join(tmpDir, "module.so")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	//nolint:gosec // G204: path originates from the configured package directory, not untrusted input
	cmd := exec.CommandContext(ctx, "go", "build", "-buildmode=plugin", "-o", soPath, path)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("loader: failed to build source artifact %s: %w", path, err)
	}

	return l.inner.Load(soPath, pkgtypes.ExtCompiled)
}
