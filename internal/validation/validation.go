// Package validation checks ids and origins that arrive from outside the
// process before they reach the filesystem or the WebSocket upgrade.
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/types"
)

// maxSegmentLength bounds one id segment; it becomes a file name
const maxSegmentLength = 255

// ValidateSegment validates one id segment. Segments name pack folders and
// entity files, so they must stay inside their parent folder.
func ValidateSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("empty id segment")
	}
	if len(segment) > maxSegmentLength {
		return fmt.Errorf("id segment longer than %d bytes", maxSegmentLength)
	}
	if segment == "." || segment == ".." {
		return fmt.Errorf("path traversal in id segment: %q", segment)
	}
	if strings.ContainsAny(segment, "/\\\x00") {
		return fmt.Errorf("id segment contains a path separator: %q", segment)
	}
	return nil
}

// ValidateID validates every segment of a ">" separated id. Empty segments
// from doubled separators are skipped but at least one must remain.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "id cannot be empty")
	}
	named := 0
	for _, segment := range types.SplitID(id) {
		if segment == "" {
			continue
		}
		if err := ValidateSegment(segment); err != nil {
			return errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid id").WithEntity(id)
		}
		named++
	}
	if named == 0 {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "id has no segments").WithEntity(id)
	}
	return nil
}

// ValidateOrigin reports whether origin may open a WebSocket or receive CORS
// headers. Allowed entries match either the full origin or its host.
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}
	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}

// ValidateAllowedOrigin checks one configured allowed origin: either a bare
// host[:port] or an http(s) origin without a path
func ValidateAllowedOrigin(allowed string) error {
	if allowed == "" {
		return fmt.Errorf("allowed origin cannot be empty")
	}
	if strings.ContainsAny(allowed, " \t\r\n") {
		return fmt.Errorf("allowed origin contains whitespace: %q", allowed)
	}
	if !strings.Contains(allowed, "://") {
		return nil
	}

	parsed, err := url.Parse(allowed)
	if err != nil {
		return fmt.Errorf("invalid allowed origin: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid allowed origin scheme: %s (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("allowed origin must have a host: %q", allowed)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("allowed origin must not have a path: %q", allowed)
	}
	return nil
}
