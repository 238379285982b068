package feeds

import "fmt"

// FetchError reports a feed reference that could not be turned into raw text.
type FetchError struct {
	Ref        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Ref, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a document, or a single item when GUID is set, that
// lacks something ingestion requires.
type ParseError struct {
	GUID   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse feed"
	if e.GUID != "" {
		msg = fmt.Sprintf("parse item %s", e.GUID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }
