// Package configs embeds the configuration templates written by the CLI.
//
// The templates are used by:
//   - cmd/amanidx/cmd/init.go: writes .amanidx.yaml at the project root
//   - cmd/amanidx/cmd/config.go: writes ~/.config/amanidx/config.yaml
package configs

import _ "embed"

// UserConfigTemplate is written by `amanidx config init`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `amanidx init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
