// ABOUTME: Package config loads and validates the hub's YAML configuration.
// ABOUTME: Supports ${VAR} environment expansion and duration string parsing.
package config
