// Package config loads and validates the coordinator's Configuration
// (spec.md §6's option table). Grounded on the teacher's
// LoadConfiguration(filename) shape (JSON file -> struct), enriched with
// struct-tag validation and environment-variable overrides the teacher's
// own config.go never had.
package config
