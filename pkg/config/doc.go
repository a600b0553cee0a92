// Package config loads and validates the cdevd daemon configuration
// from YAML.
package config
