// Package codes defines the numeric error codes carried on the wire inside
// ErrorResponse messages. Unlike the Postgres SQLSTATE catalog the teacher
// repo ships, this protocol's error codes are a flat namespace of uint32
// values, one per error class, per spec.md §4.6/§7.
package codes

// Code represents an error code unique per error class.
type Code uint32

const (
	// Uncategorized is used whenever no more specific code has been attached
	// to an error. It is never sent on the wire as-is; Flatten substitutes
	// Internal for it.
	Uncategorized Code = 0

	// Internal is returned for invariant failures: unknown SQL transaction
	// status, a failed attempt at interpreting a backend error, or any other
	// condition the core does not expect to observe.
	Internal Code = 0x01000000

	// BinaryProtocol covers malformed or unsupported wire-level requests:
	// unknown message type, empty required string, unsupported output mode,
	// unknown describe kind, unsupported protocol version.
	BinaryProtocol Code = 0x02000000

	// UnsupportedFeature is returned for requests the core understands but
	// intentionally rejects, such as a non-empty prepared-statement name.
	UnsupportedFeature Code = 0x03000000

	// TypeSpecNotFound is returned by Describe when there is no anonymous
	// compiled unit to describe.
	TypeSpecNotFound Code = 0x04000000

	// TransactionError is returned when an operation is rejected because the
	// current backend transaction is in an error state and the attempted
	// operation was not rollback-shaped.
	TransactionError Code = 0x05000000

	// QueryError is the generic bucket for compiler-reported query errors
	// (syntax errors, unresolved references, and the like).
	QueryError Code = 0x06000000

	// BackendError is attached to errors reinterpreted from the SQL backend
	// connection via the compiler's InterpretBackendError call.
	BackendError Code = 0x07000000

	// InvalidPassword indicates failed credential verification. It is
	// raised during the handshake, where a failure closes the connection
	// without writing an ErrorResponse or a ReadyForQuery.
	InvalidPassword Code = 0x08000000

	// UnsupportedProtocolVersion is returned during the handshake.
	UnsupportedProtocolVersion Code = 0x09000000
)
