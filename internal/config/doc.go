// Package config loads and validates the TOML configuration that drives the
// daemon: directory layout, watcher strategy, pipeline concurrency and retry
// ceilings, and the endpoints of the external speech and orchestrator
// services.
package config
