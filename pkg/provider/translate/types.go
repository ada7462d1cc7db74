package translate

import (
	"context"
	"errors"
	"fmt"

	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// ErrParse reports a malformed chunk in the backend's stream.
var ErrParse = errors.New("translate: malformed stream chunk")

// Request is a single translation request.
type Request struct {
	// Text is the source text. Callers never send blank text.
	Text string

	// Pair is the translation direction.
	Pair types.LanguagePair
}

// Chunk is one element of a translation stream.
type Chunk struct {
	// Text is the next delta of the translation.
	Text string

	// Err is set on the terminal chunk of a failed stream.
	Err error
}

// HTTPError is returned when the backend answers with a non-success status.
type HTTPError struct {
	Status  int
	Message string
}

// Error implements error.
func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("translate: backend returned status %d", e.Status)
	}
	return fmt.Sprintf("translate: backend returned status %d: %s", e.Status, e.Message)
}

// IsCanceled reports whether err is the result of the caller aborting the
// stream. Deadline expiry is a real failure and is not reported here.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
