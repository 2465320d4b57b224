// Command archcheck fails when a package in this module imports across a
// forbidden layer boundary. It reads `go list -json -test ./...`.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
)

const modulePrefix = "otogi-bangmap/"

// listedPackage is the subset of `go list -json` output archcheck reads.
type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

func main() {
	violations, err := check()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}
	if len(violations) == 0 {
		fmt.Println("arch-check: passed")
		return
	}

	fmt.Println("arch-check: architecture violations:")
	for _, violation := range violations {
		fmt.Printf("  - %s\n", violation)
	}
	os.Exit(1)
}

func check() ([]string, error) {
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	cmd.Stderr = os.Stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("go list: %w", err)
	}

	packages, err := decodePackages(output)
	if err != nil {
		return nil, err
	}

	return collectViolations(packages), nil
}

// decodePackages reads the concatenated JSON objects go list prints.
func decodePackages(output []byte) ([]listedPackage, error) {
	decoder := json.NewDecoder(bytes.NewReader(output))

	var packages []listedPackage
	for decoder.More() {
		var pkg listedPackage
		if err := decoder.Decode(&pkg); err != nil {
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath != "" {
			packages = append(packages, pkg)
		}
	}

	return packages, nil
}

// collectViolations returns one sorted, deduplicated line per offending import.
func collectViolations(packages []listedPackage) []string {
	found := make(map[string]bool)
	for _, pkg := range packages {
		for _, imported := range slices.Concat(pkg.Imports, pkg.TestImports, pkg.XTestImports) {
			if reason := violationReason(pkg.ImportPath, imported); reason != "" {
				found[fmt.Sprintf("%s -> %s (%s)", pkg.ImportPath, imported, reason)] = true
			}
		}
	}

	return slices.Sorted(maps.Keys(found))
}

type layerRule struct {
	importer string
	imported string
	reason   string
}

var layerRules = []layerRule{
	{importer: "pkg/otogi", imported: "internal/", reason: "pkg/otogi must not import internal/*"},
	{importer: "pkg/otogi", imported: "modules/", reason: "pkg/otogi must not import modules/*"},
	{importer: "internal/kernel", imported: "internal/driver", reason: "internal/kernel must not import internal/driver/*"},
	{importer: "internal/kernel", imported: "modules/", reason: "internal/kernel must not import modules/*"},
	{importer: "internal/driver", imported: "modules/", reason: "internal/driver/* must not import modules/*"},
	{importer: "modules/", imported: "internal/", reason: "modules/* must not import internal/*"},
}

func violationReason(importer, imported string) string {
	if !strings.HasPrefix(importer, modulePrefix) || !strings.HasPrefix(imported, modulePrefix) {
		return ""
	}
	importer = strings.TrimPrefix(importer, modulePrefix)
	imported = strings.TrimPrefix(imported, modulePrefix)

	for _, rule := range layerRules {
		if strings.HasPrefix(importer, rule.importer) && strings.HasPrefix(imported, rule.imported) {
			return rule.reason
		}
	}

	// Modules talk to each other only through pkg/otogi services.
	if importerModule, ok := moduleName(importer); ok {
		if importedModule, ok := moduleName(imported); ok && importedModule != importerModule {
			return "modules/* must not import other modules"
		}
	}

	return ""
}

func moduleName(path string) (string, bool) {
	rest, found := strings.CutPrefix(path, "modules/")
	if !found || rest == "" {
		return "", false
	}
	name, _, _ := strings.Cut(rest, "/")
	name, _, _ = strings.Cut(name, " ")

	return strings.TrimSuffix(name, "_test"), true
}
