package query

import (
	stderrors "errors"

	"github.com/edgeql-io/edgewire/codes"
	edgeerr "github.com/edgeql-io/edgewire/errors"
)

// ErrInTxError is raised whenever an operation that is not rollback-shaped
// is attempted while the view's transaction is poisoned (spec.md §3, §7).
var ErrInTxError = stderrors.New("current transaction is aborted, statements ignored until end of transaction block")

func newInTxError() error {
	return edgeerr.WithCode(ErrInTxError, codes.TransactionError)
}

func newTransactionError(msg string) error {
	return edgeerr.WithCode(stderrors.New(msg), codes.TransactionError)
}

func newProtocolError(msg string) error {
	return edgeerr.WithCode(stderrors.New(msg), codes.BinaryProtocol)
}

func newUnsupportedFeatureError(msg string) error {
	return edgeerr.WithCode(stderrors.New(msg), codes.UnsupportedFeature)
}

func newTypeSpecNotFoundError() error {
	return edgeerr.WithCode(stderrors.New("no type spec available for the anonymous statement"), codes.TypeSpecNotFound)
}

func newQueryError(err error) error {
	return edgeerr.WithCode(err, codes.QueryError)
}
