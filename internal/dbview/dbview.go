// Package dbview holds the per-connection view of transaction, alias and
// configuration state described in spec.md §3 and §4.5. It owns the
// compiled-query cache and is the sole authority the query lifecycle
// consults to decide whether the backend connection is usable.
//
// Grounded on the connection-scoped state tracking in the teacher's own
// Connection helpers (conn.go) and on the pooled-connection state machine
// in the db-bouncer example, generalized from "which backend owns this
// client" to "what transaction/alias/config state does this backend hold".
package dbview

import (
	"sync"

	"github.com/edgeql-io/edgewire/internal/compiler"
)

// View is the per-Connection database view.
type View struct {
	mu sync.Mutex

	dbVersion uint64

	inTx       bool
	inTxError  bool
	txID       uint64
	savepoint  string
	aliases    map[string]string
	config     map[string]any

	cache map[compiler.CacheKey]*compiler.QueryUnit
}

// New constructs an empty View for a freshly opened backend connection.
func New(dbVersion uint64) *View {
	return &View{
		dbVersion: dbVersion,
		aliases:   map[string]string{"": "default"},
		config:    map[string]any{},
		cache:     map[compiler.CacheKey]*compiler.QueryUnit{},
	}
}

// DBVersion returns the schema version this view was constructed against.
func (v *View) DBVersion() uint64 {
	return v.dbVersion
}

// InTransaction reports whether the backend is currently inside a
// transaction, from this view's point of view.
func (v *View) InTransaction() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inTx
}

// TxID returns the identifier of the currently open transaction; only
// meaningful while InTransaction is true.
func (v *View) TxID() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txID
}

// InTxError reports whether the current transaction (if any) has been
// poisoned by a prior error, per the invariant in spec.md §3: while true,
// only rollback-shaped operations, a rollback-prefixed simple query, or a
// sync may touch the backend.
func (v *View) InTxError() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inTxError
}

// Aliases returns a snapshot of the current alias table.
func (v *View) Aliases() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]string, len(v.aliases))
	for k, val := range v.aliases {
		out[k] = val
	}
	return out
}

// Config returns a snapshot of the current session configuration.
func (v *View) Config() map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]any, len(v.config))
	for k, val := range v.config {
		out[k] = val
	}
	return out
}

// CacheGet looks up a compiled unit by (query text, json mode).
func (v *View) CacheGet(key compiler.CacheKey) (*compiler.QueryUnit, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	unit, ok := v.cache[key]
	return unit, ok
}

// CachePut inserts a compiled unit into the cache. Callers must only call
// this for units that are Cacheable and have already been prepared
// successfully against the backend (spec.md §3's cache invariant).
func (v *View) CachePut(key compiler.CacheKey, unit *compiler.QueryUnit) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[key] = unit
}

// Start marks the beginning of execution for a unit, per execute core step
// 4 ("call dbview.start(unit)"). Transaction-opening SQL is detected by the
// backend driver; Start records nothing, and the view's transaction state
// changes only through OnSuccess, OnError and AbortTx.
func (v *View) Start(unit *compiler.QueryUnit) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_ = unit
}

// OnSuccess is called after a unit completes without error. txStatusInTx
// reports what the backend driver observed its own transaction status to
// be immediately after running the unit's SQL.
func (v *View) OnSuccess(unit *compiler.QueryUnit, txStatusInTx bool, txID uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.inTx = txStatusInTx
	if txStatusInTx {
		v.txID = txID
	} else {
		v.txID = 0
	}
	v.inTxError = false
}

// OnError is called after a unit fails. It marks the view's transaction, if
// any, as poisoned; the caller is responsible for separately detecting and
// handling the COMMIT-failed case via AbortTx.
func (v *View) OnError(unit *compiler.QueryUnit) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.inTx {
		v.inTxError = true
	}
}

// AbortTx forces the view out of its transaction when the backend has
// auto-ended it but the view still believed it was inside one (a failed
// COMMIT), per spec.md §4.4/§7.
func (v *View) AbortTx() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.inTx = false
	v.inTxError = false
	v.txID = 0
}

// RollbackTxToSavepoint applies recovered state after a savepoint rollback
// while the view is still inside a transaction (spec.md §4.5).
func (v *View) RollbackTxToSavepoint(spID string, aliases map[string]string, config map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.savepoint = spID
	v.replaceState(aliases, config)
	v.inTxError = false
}

// RecoverAliasesAndConfig applies recovered state when the view is no
// longer inside a transaction (spec.md §4.5).
func (v *View) RecoverAliasesAndConfig(aliases map[string]string, config map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.replaceState(aliases, config)
	v.inTxError = false
}

func (v *View) replaceState(aliases map[string]string, config map[string]any) {
	na := make(map[string]string, len(aliases))
	for k, val := range aliases {
		na[k] = val
	}
	if _, ok := na[""]; !ok {
		na[""] = "default"
	}
	v.aliases = na

	nc := make(map[string]any, len(config))
	for k, val := range config {
		nc[k] = val
	}
	v.config = nc
}
