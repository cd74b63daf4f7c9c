package core

import (
	"sort"
	"strings"
)

// Ecosystem describes the files a target project type must and may contain.
type Ecosystem struct {
	Name string
	// Manifests lists alternative package manifests; any one satisfies the gate.
	Manifests  []string
	Extensions []string
}

var ecosystems = map[string]Ecosystem{
	"go": {
		Name:       "go",
		Manifests:  []string{"go.mod"},
		Extensions: []string{".go"},
	},
	"node": {
		Name:       "node",
		Manifests:  []string{"package.json"},
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
	},
	"typescript": {
		Name:       "typescript",
		Manifests:  []string{"package.json"},
		Extensions: []string{".ts", ".tsx", ".js"},
	},
	"python": {
		Name:       "python",
		Manifests:  []string{"pyproject.toml", "requirements.txt", "setup.py"},
		Extensions: []string{".py"},
	},
	"rust": {
		Name:       "rust",
		Manifests:  []string{"Cargo.toml"},
		Extensions: []string{".rs"},
	},
	"java": {
		Name:       "java",
		Manifests:  []string{"pom.xml", "build.gradle", "build.gradle.kts"},
		Extensions: []string{".java"},
	},
}

// LookupEcosystem returns the ecosystem registered under name.
func LookupEcosystem(name string) (Ecosystem, bool) {
	eco, ok := ecosystems[strings.ToLower(strings.TrimSpace(name))]
	return eco, ok
}

// EcosystemNames returns the supported project types, sorted.
func EcosystemNames() []string {
	names := make([]string, 0, len(ecosystems))
	for name := range ecosystems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasManifest reports whether any of the ecosystem's manifests exists.
func (e Ecosystem) HasManifest(exists func(name string) bool) bool {
	for _, m := range e.Manifests {
		if exists(m) {
			return true
		}
	}
	return false
}

// AllowsExtension reports whether ext (with leading dot) is in the set.
func AllowsExtension(allowed []string, ext string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
