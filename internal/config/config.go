// Package config reads the gateway agent's INI-style configuration file
// and extracts the PKG_CFG section the package manager needs.
package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// Config is the subset of the gateway agent's configuration the package
// manager depends on.
type Config struct {
	// PackageDir is the absolute directory holding package artifacts.
	PackageDir string
	// PipePath is the absolute path to the control FIFO.
	PipePath string
}

// Load parses path and extracts the required PKG_CFG.pkg_path and
// PKG_CFG.pkg_msg_pipe options. A missing file or a missing section/key
// aborts bootstrap: the package manager cannot run without a package
// directory and a control pipe, so this is reported as an error rather
// than defaulted.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("configuration-invalid: cannot open config file %q: %w", path, err)
	}

	section, err := f.GetSection("PKG_CFG")
	if err != nil {
		return nil, fmt.Errorf("configuration-invalid: missing [PKG_CFG] section in %q: %w", path, err)
	}

	pkgPath := section.Key("pkg_path").String()
	if pkgPath == "" {
		return nil, fmt.Errorf("configuration-invalid: pkg_path is required in %q", path)
	}
	pipePath := section.Key("pkg_msg_pipe").String()
	if pipePath == "" {
		return nil, fmt.Errorf("configuration-invalid: pkg_msg_pipe is required in %q", path)
	}

	absPkgPath, err := filepath.Abs(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("configuration-invalid: pkg_path: %w", err)
	}
	absPipePath, err := filepath.Abs(pipePath)
	if err != nil {
		return nil, fmt.Errorf("configuration-invalid: pkg_msg_pipe: %w", err)
	}

	return &Config{PackageDir: absPkgPath, PipePath: absPipePath}, nil
}
