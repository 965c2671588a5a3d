// Package config loads strata.toml from a database directory.
package config
