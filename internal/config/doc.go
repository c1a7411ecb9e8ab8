// Package config defines the application configuration structure and
// loading. Configuration comes from an optional YAML file overridden by
// RELAY_-prefixed environment variables, and is validated before use.
package config
