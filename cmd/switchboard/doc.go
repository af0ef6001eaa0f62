// Command switchboard is the CLI for the call-recording response pipeline.
// It runs the daemon, inspects and maintains the recording ledger, registers
// recordings manually, and manages configuration.
package main
