// Package config loads the sqlgraph configuration: an optional YAML file
// followed by environment overrides, validated as a whole.
package config
