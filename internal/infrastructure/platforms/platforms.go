// Package platforms holds the social platform publishers.
package platforms

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ContentFactory/internal/domain"
)

const maxErrorBody = 2048

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// statusError turns a non-2xx response without a structured body into a PublishError.
func statusError(platform string, resp *http.Response, body []byte) *domain.PublishError {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &domain.PublishError{
		Kind:       domain.KindForStatus(resp.StatusCode),
		Platform:   platform,
		Message:    msg,
		StatusCode: resp.StatusCode,
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
	}
}

func readBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return body
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func caption(meta domain.PublishMetadata) string {
	text := meta.Caption
	if len(meta.Tags) > 0 {
		tags := make([]string, 0, len(meta.Tags))
		for _, t := range meta.Tags {
			tags = append(tags, "#"+t)
		}
		text = strings.TrimSpace(text + "\n\n" + strings.Join(tags, " "))
	}
	return text
}
