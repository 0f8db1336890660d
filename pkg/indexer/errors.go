package indexer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

var (
	// ErrReindexInProgress is returned when another bulk reindex holds the lock
	ErrReindexInProgress = errors.New("a bulk reindex is already running")
	// ErrDocumentNotFound is returned when the host has no document with the id
	ErrDocumentNotFound = errors.New("document not found")
)

// IntegrityError blocks a delete while other documents still reference it
type IntegrityError struct {
	DocumentID string
	Referrers  []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("Cannot delete %s other objects still point at it.", e.DocumentID)
}

func (e *IntegrityError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).
		AddMetaValue("document_id", e.DocumentID).
		AddMetaValue("referrers", e.Referrers)
}

// IsIntegrityError reports whether err is or wraps an IntegrityError
func IsIntegrityError(err error) bool {
	var integrityErr *IntegrityError
	return errors.As(err, &integrityErr)
}
