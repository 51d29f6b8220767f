// Package configs provides embedded configuration templates for clawmongo.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they ship with the binary regardless of install method (go install,
// binary release, Homebrew).
//
// The templates are used by:
//   - cmd/clawmongo/cmd/init.go → generateProjectYAML() - creates .clawmongo.yaml
//   - cmd/clawmongo/cmd/config.go → creates user config at ~/.config/clawmongo/config.yaml
//
// Configuration Hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. User config (~/.config/clawmongo/config.yaml)
//  3. Project config (.clawmongo.yaml)
//  4. Environment variables (CLAWMONGO_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for machine-level configuration:
// MongoDB credentials and embedding provider settings that shouldn't be
// committed with a project.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration,
// written to .clawmongo.yaml in the project root by `clawmongo init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
