// Package config loads and validates facet's TOML configuration.
//
// Load resolves the config file (explicit path, ~/.config/facet/config.toml,
// or a project-local facet.toml), decodes it over Default(), expands ~ in
// path fields, and validates the result. EnsureDirectories creates the data
// and log directories the daemon needs before stores open.
package config
