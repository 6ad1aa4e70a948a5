package hurry

import "fmt"

// The error taxonomy from spec §7. Each variant is a distinct Go type so
// callers can classify a failure with errors.As without string matching,
// mirroring the cmd.ErrXxx/Unwrap convention the CLI layer uses for
// user-facing guidance (cmd/errors.go in the teacher).

// ConfigurationError indicates a missing or malformed workspace, or an
// inability to invoke the upstream build tool at all. Surfaced to the user
// and aborts the invocation.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return fmt.Sprintf("configuration error: %v", e.Err) }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// MalformedCacheInputError indicates a parseable artifact (dep-info,
// build-script output, fingerprint) failed to parse. Treated as a
// cache miss for the single affected unit, never fatal to the build.
type MalformedCacheInputError struct {
	Unit UnitHash
	Err  error
}

func (e *MalformedCacheInputError) Error() string {
	return fmt.Sprintf("malformed cache input for unit %s: %v", e.Unit, e.Err)
}
func (e *MalformedCacheInputError) Unwrap() error { return e.Err }

// NetworkTransientError is a per-call CAS/index HTTP failure. Degrades to
// a cache miss during restore, or an elided save during save.
type NetworkTransientError struct {
	Op  string
	Err error
}

func (e *NetworkTransientError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}
func (e *NetworkTransientError) Unwrap() error { return e.Err }

// NetworkFatalError indicates the CAS or unit-index service could not be
// reached at all. The restore phase skips entirely; the save phase skips
// entirely.
type NetworkFatalError struct {
	Op  string
	Err error
}

func (e *NetworkFatalError) Error() string {
	return fmt.Sprintf("could not reach %s: %v", e.Op, e.Err)
}
func (e *NetworkFatalError) Unwrap() error { return e.Err }

// LocalIOError is an unexpected local read/write failure outside of
// not-found. Per-file; logged and skipped, since the compiler will simply
// rebuild what is missing.
type LocalIOError struct {
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("local I/O error for %s: %v", e.Path, e.Err)
}
func (e *LocalIOError) Unwrap() error { return e.Err }

// HashMismatchError is a CAS put/get integrity-check failure: the content
// received or sent does not hash to the declared key. Fatal to the single
// affected object only.
type HashMismatchError struct {
	Key      string
	Declared string
	Computed string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for key %s: declared %s, computed %s", e.Key, e.Declared, e.Computed)
}

// DaemonUnavailableError is returned on the sync-wait path when the
// background daemon cannot be reached to poll status. The save is treated
// as best-effort with an unknown final status.
type DaemonUnavailableError struct {
	Err error
}

func (e *DaemonUnavailableError) Error() string {
	return fmt.Sprintf("daemon unavailable: %v", e.Err)
}
func (e *DaemonUnavailableError) Unwrap() error { return e.Err }
