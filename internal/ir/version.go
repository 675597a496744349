package ir

// Version constants for the compiled API summary and the runtime.
const (
	// FormatVersion is the version of the compiled API summary written by
	// `hookpoint compile --output`.
	FormatVersion = "1"

	// RuntimeVersion is the hookpoint runtime version.
	RuntimeVersion = "0.1.0"
)
