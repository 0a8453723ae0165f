package timetable

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL marks caller errors: the source URL is malformed or not
// an everytime.kr timetable page.
var ErrInvalidURL = errors.New("invalid timetable URL")

// allowedHost is the only host the engine scrapes. The original service
// rejected everything else before touching a browser.
const allowedHost = "everytime.kr"

// ValidateURL checks scheme and host before any backend work.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := u.Hostname()
	if host != allowedHost && !strings.HasSuffix(host, "."+allowedHost) {
		return fmt.Errorf("%w: host %q", ErrInvalidURL, host)
	}
	return nil
}

// ExtractionError reports that the grid container or its blocks could not
// be observed on the page within the bounded render wait. Recoverable via
// backend fallback.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// CalibrationError reports insufficient or implausible time-axis
// references. Usually a site/version mismatch rather than a timing issue,
// so it is recoverable only by trying the other backend.
type CalibrationError struct {
	Reason string
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("grid calibration failed: %s", e.Reason)
}

// TimetableUnavailableError is fatal: both backends were exhausted. It
// carries both underlying failure reasons.
type TimetableUnavailableError struct {
	Primary  error
	Fallback error
}

func (e *TimetableUnavailableError) Error() string {
	return fmt.Sprintf("timetable unavailable: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *TimetableUnavailableError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}
