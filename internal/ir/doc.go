// Package ir provides the value types that flow through every pipeline:
// resource rows, entity keys, bound parameters, and action arguments.
//
// ir imports nothing internal so every other package can depend on it.
//
// Key design constraints:
//   - No float types anywhere; numbers are int64
//   - Canonical JSON (RFC 8785) is the only input to hashing
//   - Explicit null is a value (IRNull), distinct from an absent key
package ir
