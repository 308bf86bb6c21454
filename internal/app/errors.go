package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrMalformedInput  = errors.New("malformed input")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrDuplicateTurn   = errors.New("turn already submitted")
	ErrChatBusy        = errors.New("another turn of this chat is in progress")
	ErrNotFound        = errors.New("not found")
)

// PartialIngestionError reports an ingestion that stopped after some
// records were already written, so a retry knows where it stands.
type PartialIngestionError struct {
	DocumentID string
	Succeeded  int
	Total      int
	Err        error
}

func (e *PartialIngestionError) Error() string {
	return fmt.Sprintf("ingestion of %s stopped after %d of %d chunks: %v", e.DocumentID, e.Succeeded, e.Total, e.Err)
}

func (e *PartialIngestionError) Unwrap() error {
	return e.Err
}
