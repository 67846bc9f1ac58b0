package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the lock coordinator.
// Use these keys consistently so log lines are greppable/aggregable.
const (
	// ========================================================================
	// Distributed Tracing (passthrough only, no SDK wired in this module)
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Path & Operation
	// ========================================================================
	KeyPath      = "path"      // path being locked/read/written/deleted
	KeyOperation = "operation" // openInputStream, openOutputStream, tryDelete, waitFor
	KeyLevel     = "level"     // lock level: read, write, delete
	KeyOwner     = "owner"     // requesting or holding owner name
	KeyLabel     = "label"     // human-readable label for an owner

	// ========================================================================
	// Lock Outcomes
	// ========================================================================
	KeyOutcome    = "outcome"     // admit, retry, reject, timeout, cancelled
	KeyRefCount   = "ref_count"   // LockOwner reference count after the operation
	KeyDeadlineMs = "deadline_ms" // time remaining until the caller's deadline

	// ========================================================================
	// JoinableFile
	// ========================================================================
	KeyWritten    = "written"     // JoinableFile.written counter
	KeyCursor     = "cursor"      // reader cursor offset
	KeyReaders    = "readers"     // number of joined readers
	KeyBytesWrote = "bytes_wrote" // bytes accepted by a single write call

	// ========================================================================
	// Global Lock Manager
	// ========================================================================
	KeyNodeID      = "node_id"      // this process's node identity
	KeyBackend     = "backend"      // memory, badger, postgres
	KeyTTL         = "ttl"          // configured TTL for a global lock entry
	KeyRetryCount  = "retry_count"  // number of tryLock retries so far
	KeyLockID      = "lock_id"      // opaque lock/diagnostic identifier (UUID)

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
)

// TraceID returns a slog.Attr for a passthrough OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for a passthrough OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Path returns a slog.Attr for the path an operation acts on
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Operation returns a slog.Attr for the façade operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// LockLevel returns a slog.Attr for a lock level
func LockLevel(level string) slog.Attr {
	return slog.String(KeyLevel, level)
}

// Owner returns a slog.Attr for an owner name
func Owner(owner string) slog.Attr {
	return slog.String(KeyOwner, owner)
}

// Label returns a slog.Attr for an owner's human-readable label
func Label(label string) slog.Attr {
	return slog.String(KeyLabel, label)
}

// Outcome returns a slog.Attr for an admit/retry/reject/timeout/cancel outcome
func Outcome(outcome string) slog.Attr {
	return slog.String(KeyOutcome, outcome)
}

// RefCount returns a slog.Attr for a LockOwner's reference count
func RefCount(n int) slog.Attr {
	return slog.Int(KeyRefCount, n)
}

// DeadlineMs returns a slog.Attr for time remaining until a deadline
func DeadlineMs(ms float64) slog.Attr {
	return slog.Float64(KeyDeadlineMs, ms)
}

// Written returns a slog.Attr for a JoinableFile's written counter
func Written(n int64) slog.Attr {
	return slog.Int64(KeyWritten, n)
}

// Cursor returns a slog.Attr for a reader cursor offset
func Cursor(n int64) slog.Attr {
	return slog.Int64(KeyCursor, n)
}

// Readers returns a slog.Attr for the number of joined readers
func Readers(n int) slog.Attr {
	return slog.Int(KeyReaders, n)
}

// BytesWrote returns a slog.Attr for bytes accepted by a single write call
func BytesWrote(n int) slog.Attr {
	return slog.Int(KeyBytesWrote, n)
}

// NodeID returns a slog.Attr for this process's node identity
func NodeID(id string) slog.Attr {
	return slog.String(KeyNodeID, id)
}

// Backend returns a slog.Attr for the configured GlobalLockManager backend
func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

// TTL returns a slog.Attr for a global lock entry's TTL
func TTL(seconds float64) slog.Attr {
	return slog.Float64(KeyTTL, seconds)
}

// RetryCount returns a slog.Attr for the number of tryLock retries so far
func RetryCount(n int) slog.Attr {
	return slog.Int(KeyRetryCount, n)
}

// LockID returns a slog.Attr for an opaque lock/diagnostic identifier
func LockID(id string) slog.Attr {
	return slog.String(KeyLockID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}
