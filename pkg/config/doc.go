// Package config loads service configuration from AMORAUTH_* environment
// variables with validated defaults.
package config
