// Package fixture materializes the certificate hierarchy produced by
// the pki package into the fixed directory layout the downstream test
// suite consumes. The layout is declared as a plan of artifacts with
// one or more destination paths each; every copy of one artifact is
// written from the same source bytes, so copies cannot diverge.
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

var (
	// ErrPathConflict is returned when two different logical artifacts
	// claim the same destination path.
	ErrPathConflict = errors.New("destination path already planned")

	// ErrArtifactMismatch is returned when an artifact name is placed
	// again with different bytes.
	ErrArtifactMismatch = errors.New("artifact bytes changed between placements")

	// ErrManifestMismatch is returned by Verify when a written tree has
	// drifted from its manifest.
	ErrManifestMismatch = errors.New("fixture tree does not match manifest")
)

// Kind classifies an artifact.
type Kind string

const (
	KindCertificate Kind = "certificate"
	KindPrivateKey  Kind = "private-key"
	KindCABundle    Kind = "ca-bundle"
	KindRevocation  Kind = "revocation-data" // OCSP index, CRLs, signed responses
)

// Artifact is one logical fixture file: a name, its bytes, and every
// destination path (relative to the output root) a copy must land at.
type Artifact struct {
	Name         string
	Kind         Kind
	Bytes        []byte
	Destinations []string
}

// Planner accumulates artifacts and enforces that no destination path
// is claimed by two different artifacts.
type Planner struct {
	artifacts []*Artifact
	byName    map[string]*Artifact
	byPath    map[string]string // destination -> artifact name
}

// NewPlanner returns an empty planner.
func NewPlanner() *Planner {
	return &Planner{
		byName: make(map[string]*Artifact),
		byPath: make(map[string]string),
	}
}

// Place registers an artifact at one or more destinations. Placing the
// same logical artifact again merges the new destinations; the bytes
// must match the earlier placement or Place fails with
// ErrArtifactMismatch. Placing a different artifact at an
// already-claimed path fails with ErrPathConflict.
func (p *Planner) Place(name string, kind Kind, data []byte, destinations ...string) error {
	artifact, exists := p.byName[name]
	if !exists {
		artifact = &Artifact{Name: name, Kind: kind, Bytes: data}
		p.byName[name] = artifact
		p.artifacts = append(p.artifacts, artifact)
	} else if !bytes.Equal(artifact.Bytes, data) {
		return fmt.Errorf("%w: %s", ErrArtifactMismatch, name)
	}
	for _, dest := range destinations {
		dest = filepath.ToSlash(filepath.Clean(dest))
		owner, claimed := p.byPath[dest]
		if claimed {
			if owner != name {
				return fmt.Errorf("%w: %s claimed by both %q and %q", ErrPathConflict, dest, owner, name)
			}
			continue
		}
		p.byPath[dest] = name
		artifact.Destinations = append(artifact.Destinations, dest)
	}
	return nil
}

// Artifacts returns all planned artifacts in placement order.
func (p *Planner) Artifacts() []*Artifact {
	out := make([]*Artifact, len(p.artifacts))
	copy(out, p.artifacts)
	return out
}

// Paths returns every claimed destination path, sorted.
func (p *Planner) Paths() []string {
	paths := make([]string, 0, len(p.byPath))
	for path := range p.byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// WriteTo materializes every artifact under root. Each destination of
// one artifact is written from the same byte slice. Private keys are
// written 0600, everything else 0644.
func (p *Planner) WriteTo(root string) error {
	for _, artifact := range p.artifacts {
		mode := os.FileMode(0o644)
		if artifact.Kind == KindPrivateKey {
			mode = 0o600
		}
		for _, dest := range artifact.Destinations {
			path := filepath.Join(root, filepath.FromSlash(dest))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("artifact %s: creating %s: %w", artifact.Name, filepath.Dir(path), err)
			}
			if err := os.WriteFile(path, artifact.Bytes, mode); err != nil {
				return fmt.Errorf("artifact %s: writing %s: %w", artifact.Name, dest, err)
			}
		}
	}
	return nil
}
