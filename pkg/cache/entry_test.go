package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testResponse(headers map[string]string, body string) *http.Response {
	recorder := httptest.NewRecorder()
	for key, value := range headers {
		recorder.Header().Set(key, value)
	}
	recorder.WriteString(body)
	return recorder.Result()
}

func TestFromResponse(t *testing.T) {
	response := testResponse(map[string]string{
		"ETag":          `"abc123"`,
		"Last-Modified": "Wed, 21 Oct 2015 07:28:00 GMT",
		"Link":          `<https://api.github.com/x?page=2>; rel="next"`,
	}, `{"hello":"world"}`)

	entry, err := FromResponse(response)
	if err != nil {
		t.Fatalf("FromResponse: %v", err)
	}

	if string(entry.Body) != `{"hello":"world"}` {
		t.Errorf("Body = %q", entry.Body)
	}
	if entry.ETag != `"abc123"` {
		t.Errorf("ETag = %q", entry.ETag)
	}
	if entry.LastModified.IsZero() {
		t.Error("LastModified not parsed")
	}
	if entry.Headers.Get("Link") == "" {
		t.Error("Link header must survive capture for pagination")
	}

	// The caller must still be able to read the body.
	remaining, _ := io.ReadAll(response.Body)
	if string(remaining) != `{"hello":"world"}` {
		t.Error("response body not restored after capture")
	}
}

func TestEntry_ToResponse(t *testing.T) {
	entry := &Entry{
		Body:       []byte(`[1,2,3]`),
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Link": []string{`<https://x?page=2>; rel="next"`}},
	}

	response := entry.ToResponse()
	body, _ := io.ReadAll(response.Body)
	if string(body) != `[1,2,3]` {
		t.Errorf("body = %q", body)
	}
	if response.Header.Get("Link") == "" {
		t.Error("headers missing from materialized response")
	}
}

func TestApplyConditionalHeaders(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "https://api.github.com/user", nil)

	ApplyConditionalHeaders(request, &Entry{ETag: `"abc"`, LastModified: time.Now()})
	if got := request.Header.Get("If-None-Match"); got != `"abc"` {
		t.Errorf("If-None-Match = %q", got)
	}
	if request.Header.Get("If-Modified-Since") != "" {
		t.Error("ETag must be preferred over Last-Modified")
	}

	request = httptest.NewRequest(http.MethodGet, "https://api.github.com/user", nil)
	ApplyConditionalHeaders(request, &Entry{LastModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)})
	if got := request.Header.Get("If-Modified-Since"); !strings.Contains(got, "2024") {
		t.Errorf("If-Modified-Since = %q", got)
	}

	request = httptest.NewRequest(http.MethodGet, "https://api.github.com/user", nil)
	ApplyConditionalHeaders(request, nil)
	if len(request.Header) != 0 {
		t.Error("nil entry must not add headers")
	}
}

func TestEntry_Revalidatable(t *testing.T) {
	if (&Entry{}).Revalidatable() {
		t.Error("entry without validators reported revalidatable")
	}
	if !(&Entry{ETag: `"x"`}).Revalidatable() {
		t.Error("entry with ETag not revalidatable")
	}
	var nilEntry *Entry
	if nilEntry.Revalidatable() {
		t.Error("nil entry reported revalidatable")
	}
}
