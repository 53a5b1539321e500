package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const maxErrorBody = 1 << 20

// StatusError is an upstream answer the caller could not use.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// UpstreamErrorResponse is the error body of the product API:
//
//	{"status_code": 404, "error_msg": "Product Not Found"}
type UpstreamErrorResponse struct {
	StatusCode int    `json:"status_code"`
	ErrorMsg   string `json:"error_msg"`
}

// ParseResponseError reads a non-2xx response and translates it into an
// AppError. The body is consumed and closed.
func ParseResponseError(resp *http.Response, resource, id string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", resource, resp.StatusCode, err)
	}

	message := strings.TrimSpace(string(body))
	var upstream UpstreamErrorResponse
	if json.Unmarshal(body, &upstream) == nil && upstream.ErrorMsg != "" {
		message = upstream.ErrorMsg
	}

	return mapStatus(resp.StatusCode, resource, id, message)
}

// mapStatus is the single place where upstream statuses become error
// categories. Only 404 means the product does not exist; 401 and 403 are
// both auth failures.
func mapStatus(status int, resource, id, message string) error {
	switch status {
	case http.StatusNotFound:
		return apperrors.NotFound(resource, id)
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.Unauthorized(fmt.Sprintf("%s: %s", resource, message))
	default:
		appErr := apperrors.Unavailable(resource, status)
		if message != "" {
			appErr.Err = fmt.Errorf("%w: %s", apperrors.ErrUnavailable, message)
		}
		return appErr
	}
}
