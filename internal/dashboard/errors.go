package dashboard

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies a catalog fetch failure.
type FetchErrorKind string

const (
	FetchInvalidURL      FetchErrorKind = "invalid-url"
	FetchNetwork         FetchErrorKind = "network"
	FetchInvalidResponse FetchErrorKind = "invalid-response"
	FetchDecode          FetchErrorKind = "decode"
	FetchAuth            FetchErrorKind = "auth"
)

// FetchError is returned when a dashboard fetch cannot produce a catalog.
// Auth failures carry their own kind so the UI can prompt for credentials
// instead of showing a generic offline state.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dashboard fetch (%s) %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("dashboard fetch (%s) %s", e.Kind, e.URL)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrorKind extracts the fetch-error kind from err, or "" if err is not a
// FetchError.
func ErrorKind(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return ErrorKind(err) == FetchAuth
}
