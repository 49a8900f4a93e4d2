// Package metrics implements component 12: prometheus-backed counters and
// histograms for transaction outcomes, compensation attempts, and risk
// flags. Derived rates (success rate, compensation success rate, average
// duration) are not computed here; only the raw counters and the duration
// histogram are registered. There is no teacher
// equivalent (metrics wiring is out of scope for the teacher's own domain);
// this is built directly from the spec using the pack's metrics library.
package metrics
