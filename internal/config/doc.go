// Package config loads and validates configuration for the backend and the
// bot service from environment variables with the TGAGENT_ prefix.
package config
