package query

import "context"

// Sync handles the 'S' Sync message, per spec.md §4.4.
func Sync(ctx context.Context, s *Session) error {
	s.Reader.DiscardMessage()

	if err := s.Backend.Sync(ctx); err != nil {
		return err
	}

	if err := writeReadyForQuery(s); err != nil {
		return err
	}

	return s.Writer.Flush()
}
