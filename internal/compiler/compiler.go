// Package compiler defines the interface spoken to the external query
// compiler (spec.md §3, §4.4) and ships a reference in-process
// implementation for tests and standalone operation, grounded on the
// teacher's handler-function pattern (ParseFn/SimpleQueryFn in wire.go)
// generalized into an explicit RPC-shaped interface.
package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/edgeql-io/edgewire/codes"
	"github.com/edgeql-io/edgewire/internal/typedesc"
)

// StatementMode controls how many statements compile_eql is expected to
// return for a given input, per spec.md §4.4.
type StatementMode string

const (
	// StatementModeSingle compiles exactly one statement (Parse).
	StatementModeSingle StatementMode = "single"
	// StatementModeAll compiles every statement in the script (SimpleQuery).
	StatementModeAll StatementMode = "all"
	// StatementModeSkipFirst compiles every statement after the first, used
	// when the first statement of a script has already been consumed as a
	// transaction-recovery rollback.
	StatementModeSkipFirst StatementMode = "skip_first"
)

// QueryUnit is the compiler's output for one statement: the SQL to run plus
// the type descriptors, cacheability, and rollback-shape flags (spec.md §3).
type QueryUnit struct {
	SQL                [][]byte
	InTypeID           uuid.UUID
	OutTypeID          uuid.UUID
	InTypeData         []byte
	OutTypeData        []byte
	HasResult          bool
	SingletonResult    bool
	Cacheable          bool
	SQLHash            string // empty means "no prepared-statement reuse"
	TxRollback         bool
	TxSavepointRollback bool
}

// CacheKey is the dbview compiled-query cache key: (query text, json mode).
type CacheKey struct {
	Query string
	JSON  bool
}

// AliasEntry is one row of recovered alias state (spec.md §4.5).
type AliasEntry struct {
	Name  string
	Value string
}

// ConfigEntry is one row of recovered session configuration state.
type ConfigEntry struct {
	Name  string
	Value any
}

// BackendErrorFields are the raw fields surfaced by the SQL backend driver
// for an error it raised; passed through to InterpretBackendError verbatim.
type BackendErrorFields map[byte]string

// InterpretedError is the compiler's classification of a backend error.
type InterpretedError struct {
	Code    uint32
	Message string
	Attrs   map[byte]string
}

// Compiler is the interface the core speaks to the external query
// compiler process. Every method is a suspension point (spec.md §5).
type Compiler interface {
	// CompileEQL compiles eql outside of a transaction.
	CompileEQL(ctx context.Context, dbVersion uint64, eql string, aliases []AliasEntry, config []ConfigEntry, jsonMode bool, mode StatementMode) ([]*QueryUnit, error)

	// CompileEQLInTx compiles eql against an already-open transaction.
	CompileEQLInTx(ctx context.Context, txID uint64, eql string, jsonMode bool, mode StatementMode) ([]*QueryUnit, error)

	// TryCompileRollback attempts to compile eql as a rollback-shaped
	// statement (ROLLBACK or ROLLBACK TO SAVEPOINT). It returns the
	// compiled unit plus the number of additional statements found after
	// the rollback in the input script.
	TryCompileRollback(ctx context.Context, dbVersion uint64, eql string) (unit *QueryUnit, numRemain int, err error)

	// CompileGraphQL compiles a legacy GraphQL query into a QueryUnit.
	CompileGraphQL(ctx context.Context, dbVersion uint64, query string) (*QueryUnit, error)

	// SettingValFromEQL decodes one backend-reported configuration value
	// into its EdgeQL-visible representation.
	SettingValFromEQL(ctx context.Context, name, rawValue string) (any, error)

	// InterpretBackendError classifies a backend-originated error.
	InterpretBackendError(ctx context.Context, dbVersion uint64, fields BackendErrorFields) (*InterpretedError, error)
}

// reference is a minimal in-process Compiler used when no external
// compiler RPC endpoint is configured. It treats EdgeQL input as already
// being a single SQL statement: real deployments replace this with a
// client that talks to the out-of-process compiler, but the reference
// implementation is enough to drive the protocol end to end in tests and
// to let the server run standalone.
type reference struct{}

// NewReference returns the in-process reference Compiler.
func NewReference() Compiler {
	return &reference{}
}

func (r *reference) compileOne(eql string, jsonMode bool) *QueryUnit {
	enc := typedesc.NewEncoder()
	enc.BaseScalar(typedesc.AnyType)
	inData := enc.Bytes()

	enc = typedesc.NewEncoder()
	enc.BaseScalar(typedesc.AnyType)
	outData := enc.Bytes()

	trimmed := strings.TrimSpace(eql)
	hasResult := strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") ||
		strings.HasPrefix(strings.ToUpper(trimmed), "WITH")

	return &QueryUnit{
		SQL:             [][]byte{[]byte(trimmed)},
		InTypeID:        typedesc.AnyType,
		OutTypeID:       typedesc.AnyType,
		InTypeData:      inData,
		OutTypeData:     outData,
		HasResult:       hasResult,
		SingletonResult: false,
		Cacheable:       true,
		SQLHash:         "",
	}
}

func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *reference) CompileEQL(ctx context.Context, dbVersion uint64, eql string, aliases []AliasEntry, config []ConfigEntry, jsonMode bool, mode StatementMode) ([]*QueryUnit, error) {
	stmts := selectMode(splitStatements(eql), mode)
	units := make([]*QueryUnit, 0, len(stmts))
	for _, s := range stmts {
		units = append(units, r.compileOne(s, jsonMode))
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("compiler: empty script")
	}
	return units, nil
}

func (r *reference) CompileEQLInTx(ctx context.Context, txID uint64, eql string, jsonMode bool, mode StatementMode) ([]*QueryUnit, error) {
	return r.CompileEQL(ctx, 0, eql, nil, nil, jsonMode, mode)
}

func selectMode(stmts []string, mode StatementMode) []string {
	switch mode {
	case StatementModeSingle:
		if len(stmts) > 1 {
			return stmts[:1]
		}
		return stmts
	case StatementModeSkipFirst:
		if len(stmts) > 1 {
			return stmts[1:]
		}
		return nil
	default:
		return stmts
	}
}

func isRollback(stmt string) bool {
	u := strings.ToUpper(strings.TrimSpace(stmt))
	return u == "ROLLBACK" || strings.HasPrefix(u, "ROLLBACK TO SAVEPOINT")
}

func (r *reference) TryCompileRollback(ctx context.Context, dbVersion uint64, eql string) (*QueryUnit, int, error) {
	stmts := splitStatements(eql)
	if len(stmts) == 0 {
		return nil, 0, fmt.Errorf("compiler: empty rollback script")
	}

	if !isRollback(stmts[0]) {
		return nil, 0, fmt.Errorf("compiler: script does not begin with a rollback")
	}

	unit := r.compileOne(stmts[0], false)
	unit.TxRollback = strings.EqualFold(strings.TrimSpace(stmts[0]), "ROLLBACK")
	unit.TxSavepointRollback = !unit.TxRollback

	return unit, len(stmts) - 1, nil
}

func (r *reference) CompileGraphQL(ctx context.Context, dbVersion uint64, query string) (*QueryUnit, error) {
	unit := r.compileOne(fmt.Sprintf("SELECT graphql_execute(%q)", query), true)
	unit.HasResult = true
	unit.SingletonResult = true
	return unit, nil
}

func (r *reference) SettingValFromEQL(ctx context.Context, name, rawValue string) (any, error) {
	return rawValue, nil
}

func (r *reference) InterpretBackendError(ctx context.Context, dbVersion uint64, fields BackendErrorFields) (*InterpretedError, error) {
	msg := fields['M']
	if msg == "" {
		msg = "backend error"
	}

	return &InterpretedError{
		Code:    uint32(codes.BackendError),
		Message: msg,
		Attrs:   map[byte]string{'C': fields['C'], 'D': fields['D']},
	}, nil
}
