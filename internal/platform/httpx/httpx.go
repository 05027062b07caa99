package httpx

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// IsGoneHTTPStatus reports whether a push target answered that it no longer exists.
func IsGoneHTTPStatus(code int) bool {
	return code == http.StatusGone || code == http.StatusNotFound
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

func IsSuccess(code int) bool {
	return code >= 200 && code <= 299
}

// DrainAndClose lets the transport reuse the connection.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// Snippet reads at most n bytes of a response body for error messages.
func Snippet(resp *http.Response, n int64) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, n))
	return strings.TrimSpace(string(b))
}
