// Package config defines the application configuration structure and
// loads it from environment variables (CREWPLANE_ prefix) and an optional
// config file, with validation of the result.
package config
