package fetcher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Failure codes. HTTP status failures use HTTPCode.
const (
	CodeTimeout  = "TIMEOUT"
	CodeNotHTML  = "NOT_HTML"
	CodeNotJSON  = "NOT_JSON"
	CodeNetwork  = "NETWORK_ERROR"
	CodeCanceled = "CANCELED"
	CodeInvalid  = "INVALID_URL"
)

// HTTPCode renders the failure code for a non-2xx status.
func HTTPCode(status int) string {
	return "HTTP_" + strconv.Itoa(status)
}

// Error is a classified fetch failure.
type Error struct {
	Code   string
	Status int
	URL    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Code, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the failure code carried anywhere in err's chain, or "".
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsHTTPStatus reports whether code is an HTTP_<n> failure.
func IsHTTPStatus(code string) bool {
	return strings.HasPrefix(code, "HTTP_")
}
