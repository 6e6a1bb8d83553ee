package main

const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing config, invalid roster)
	ExitDataError   = 3 // Data error (unknown work, malformed input)
	ExitSyncErrors  = 4 // Sync completed but some sources failed
)
