// Package daemon assembles the long-running switchboard process: recording
// discovery, pipeline processing, startup recovery, and single-instance
// locking.
package daemon
