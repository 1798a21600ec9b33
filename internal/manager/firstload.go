package manager

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/huitest/liota/internal/pkgtypes"
)

// gatewayIdentifier is the mandatory package brought up before the
// dispatch loop accepts external commands.
const gatewayIdentifier = "gateway"

// FirstLoad brings up the mandatory gateway package. If no "gateway"
// artifact exists, it scans packageDir for "gateway_*" artifacts,
// deduplicates by stem, and loads the sole candidate. Zero or more than
// one candidate is ambiguous and aborts initialization rather than
// guessing which one the operator meant.
func (m *Manager) FirstLoad(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identifier := gatewayIdentifier
	if _, _, err := m.resolveArtifact(gatewayIdentifier, nil); err != nil {
		candidate, cerr := m.findGatewayCandidate()
		if cerr != nil {
			return fmt.Errorf("first-load: %w", cerr)
		}
		identifier = candidate
	}

	if _, err := m.load(ctx, identifier, nil, nil); err != nil {
		return fmt.Errorf("first-load: %w", err)
	}

	if !m.registry.Has(gatewayIdentifier) {
		return fmt.Errorf("first-load: registry does not contain %q after loading %q", gatewayIdentifier, identifier)
	}
	return nil
}

// findGatewayCandidate scans packageDir for artifacts named "gateway_*"
// with a recognized extension, deduplicated by stem and sorted
// lexicographically. Exactly one candidate is required.
func (m *Manager) findGatewayCandidate() (string, error) {
	entries, err := os.ReadDir(m.packageDir)
	if err != nil {
		return "", fmt.Errorf("cannot scan package directory: %w", err)
	}

	extSet := make(map[string]bool, len(pkgtypes.Priority))
	for _, e := range pkgtypes.Priority {
		extSet["."+string(e)] = true
	}

	stems := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := extOf(name)
		if !extSet[ext] {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		if !strings.HasPrefix(stem, gatewayIdentifier+"_") {
			continue
		}
		stems[stem] = true
	}

	candidates := make([]string, 0, len(stems))
	for s := range stems {
		candidates = append(candidates, s)
	}
	sort.Strings(candidates)

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", fmt.Errorf("no %s_* candidate found in %s", gatewayIdentifier, m.packageDir)
	default:
		return "", fmt.Errorf("ambiguous %s_* candidates in %s: %v", gatewayIdentifier, m.packageDir, candidates)
	}
}

func extOf(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i:]
		}
	}
	return ""
}
