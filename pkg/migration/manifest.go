// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes the ordering and naming of registered steps for
// CLI-driven runs, independent of the Go code implementing each step.
// It never supplies the step logic itself (concrete migration
// definitions are out of this module's scope); it only lets operators
// check a registry's shape against a checked-in description before
// running it.
type Manifest struct {
	Steps []ManifestStep `yaml:"steps"`
}

// ManifestStep names one entry of the chain.
type ManifestStep struct {
	TargetMigrationIndex int    `yaml:"target_migration_index"`
	Name                 string `yaml:"name"`
}

// LoadManifest reads and parses a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// CheckAgainst reports a BadCodingError if the manifest's target indices
// don't exactly match the registry's, catching a manifest that has
// drifted from the code it describes.
func (m *Manifest) CheckAgainst(r *Registry) error {
	named := make(map[int]struct{}, len(m.Steps))
	for _, step := range m.Steps {
		if _, ok := r.Step(step.TargetMigrationIndex); !ok {
			return BadCodingError{Reason: fmt.Sprintf("manifest names target migration index %d (%s) with no registered step", step.TargetMigrationIndex, step.Name)}
		}
		named[step.TargetMigrationIndex] = struct{}{}
	}
	for t := range r.steps {
		if _, ok := named[t]; !ok {
			return BadCodingError{Reason: fmt.Sprintf("registered step for target migration index %d is missing from the manifest", t)}
		}
	}
	return nil
}
