package errors

import "github.com/edgeql-io/edgewire/codes"

// Error contains the wire protocol error fields collected from an error
// chain (spec.md §4.6). The error writer (errorwriter.go) sends only Code and
// Message; Detail, Hint, Severity, ConstraintName and Source are not written
// on the wire.
type Error struct {
	Code           codes.Code
	Message        string
	Detail         string
	Hint           string
	Severity       Severity
	ConstraintName string
	Source         *Source
}

// Source represents, whenever possible, the origin of a given error.
type Source struct {
	File     string
	Line     int32
	Function string
}

// Flatten returns a flattened error which could be used to construct wire
// protocol ErrorResponse messages.
func Flatten(err error) Error {
	if err == nil {
		return Error{
			Code:     codes.Internal,
			Message:  "unknown error, an internal process attempted to throw an error",
			Severity: LevelFatal,
		}
	}

	code := GetCode(err)
	if code == codes.Uncategorized {
		code = codes.Internal
	}

	return Error{
		Code:           code,
		Message:        err.Error(),
		Severity:       DefaultSeverity(GetSeverity(err)),
		ConstraintName: GetConstraintName(err),
		Detail:         GetDetail(err),
		Hint:           GetHint(err),
		Source:         GetSource(err),
	}
}
