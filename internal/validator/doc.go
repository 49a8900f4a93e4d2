// Package validator implements component 7: the pre-commit checklist run
// when a transaction transitions COLLECTING -> VALIDATING. It probes each
// enlisted database through a circuit breaker so a database that is
// already known-bad fails fast instead of hanging the validation phase.
package validator
