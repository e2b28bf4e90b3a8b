package manifest

import (
	cyclonedx "github.com/CycloneDX/cyclonedx-go"
)

// BuildSBOM renders the declared npm dependency set as a minimal CycloneDX
// component list. This is informational only — SPEC_FULL.md §4.2 — and does
// not feed RiskScore; it gives downstream tooling (out of scope here) a
// standard interchange shape instead of a bare name/version map.
func (res *Result) BuildSBOM() *cyclonedx.BOM {
	bom := cyclonedx.NewBOM()
	components := make([]cyclonedx.Component, 0, len(res.NPMDependencies))
	for name, version := range res.NPMDependencies {
		components = append(components, cyclonedx.Component{
			Type:    cyclonedx.ComponentTypeLibrary,
			Name:    name,
			Version: version,
			PackageURL: "pkg:npm/" + name + "@" + version,
		})
	}
	bom.Components = &components
	return bom
}
