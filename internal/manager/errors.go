package manager

import "errors"

// Sentinel error kinds surfaced by the core. Wrapped with
// fmt.Errorf("...: %w", ...) at each call site so errors.Is still matches.
var (
	ErrArtifactMissing    = errors.New("artifact-missing")
	ErrArtifactUnreadable = errors.New("artifact-unreadable")
	ErrModuleMalformed    = errors.New("module-malformed")
	ErrDependencyCycle    = errors.New("dependency-cycle")
	ErrDuplicateResource  = errors.New("duplicate-resource")
	ErrTypeViolation      = errors.New("type-violation")
)
