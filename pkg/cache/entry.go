package cache

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// Entry is one cached GitHub response.
type Entry struct {
	// Body is the response body.
	Body []byte `json:"body"`

	// ETag is the validator sent back via If-None-Match.
	ETag string `json:"etag"`

	// LastModified is the fallback validator for If-Modified-Since.
	LastModified time.Time `json:"last_modified"`

	// StatusCode of the cached response.
	StatusCode int `json:"status_code"`

	// Headers of the cached response. Pagination Link headers in
	// particular must survive a 304 revalidation.
	Headers http.Header `json:"headers"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`
}

// Revalidatable reports whether the entry carries a validator usable
// for a conditional request.
func (e *Entry) Revalidatable() bool {
	return e != nil && (e.ETag != "" || !e.LastModified.IsZero())
}

// FromResponse captures a response into an Entry. The body is read in
// full and restored so the caller can still consume it.
func FromResponse(response *http.Response) (*Entry, error) {
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	response.Body.Close()
	response.Body = io.NopCloser(bytes.NewReader(body))

	entry := &Entry{
		Body:       body,
		ETag:       response.Header.Get("ETag"),
		StatusCode: response.StatusCode,
		Headers:    response.Header.Clone(),
		StoredAt:   time.Now(),
	}
	if value := response.Header.Get("Last-Modified"); value != "" {
		if lastModified, err := http.ParseTime(value); err == nil {
			entry.LastModified = lastModified
		}
	}
	return entry, nil
}

// ToResponse materializes the entry as an HTTP response, used when the
// origin answered 304 Not Modified.
func (e *Entry) ToResponse() *http.Response {
	return &http.Response{
		StatusCode: e.StatusCode,
		Status:     http.StatusText(e.StatusCode),
		Header:     e.Headers.Clone(),
		Body:       io.NopCloser(bytes.NewReader(e.Body)),
	}
}

// ApplyConditionalHeaders adds If-None-Match (preferred) or
// If-Modified-Since to the outgoing request.
func ApplyConditionalHeaders(request *http.Request, entry *Entry) {
	if request == nil || !entry.Revalidatable() {
		return
	}
	if entry.ETag != "" {
		request.Header.Set("If-None-Match", entry.ETag)
		return
	}
	request.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
}
