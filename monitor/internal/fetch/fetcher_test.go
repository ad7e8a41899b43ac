package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const samplePage = `<!DOCTYPE html>
<html><head><title>Acme Pricing</title></head>
<body>
<article>
<h1>Acme Pricing</h1>
<p>The Starter plan costs $10 per month and includes everything a small team needs to get going with Acme.</p>
<p>The Business plan costs $29 per month and adds priority support, audit logs, and unlimited projects for growing companies.</p>
<p>Contact sales for enterprise pricing and volume discounts on annual commitments across your whole organization.</p>
</article>
</body></html>`

// WHAT: a plain HTTP fetch returns the raw page, extracted text containing
// the article content, the page title, and a stable hash of the text.
func TestFetchPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "competitor-intel") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := NewClient(Config{Timeout: 5 * time.Second})
	defer c.Close()

	res, err := c.Fetch(context.Background(), srv.URL, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("StatusCode = %d", res.StatusCode)
	}
	if !strings.Contains(res.HTML, "<article>") {
		t.Fatal("raw HTML not preserved")
	}
	if !strings.Contains(res.Text, "$10") || !strings.Contains(res.Text, "$29") {
		t.Fatalf("extracted text lost prices:\n%s", res.Text)
	}
	if strings.Contains(res.Text, "<p>") {
		t.Fatalf("markup leaked into extracted text:\n%s", res.Text)
	}

	again, err := c.Fetch(context.Background(), srv.URL, false)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if again.Hash != res.Hash {
		t.Fatalf("hash unstable: %s vs %s", again.Hash, res.Hash)
	}
}

// WHAT: non-2xx responses are an error and transient failures are retried up
// to the configured count.
func TestFetchRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := NewClient(Config{Timeout: 5 * time.Second, Retries: 3, RetryDelay: 10 * time.Millisecond})
	defer c.Close()

	res, err := c.Fetch(context.Background(), srv.URL, false)
	if err != nil {
		t.Fatalf("Fetch after retries: %v", err)
	}
	if res.StatusCode != 200 || calls.Load() != 3 {
		t.Fatalf("status %d after %d calls", res.StatusCode, calls.Load())
	}

	// Exhausted retries surface the last error.
	calls.Store(-10)
	if _, err := c.Fetch(context.Background(), srv.URL, false); err == nil {
		t.Fatal("expected error once retries are exhausted")
	}
}

// WHAT: the response body is capped at MaxBytes.
func TestFetchSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>" + strings.Repeat("A", 1<<20) + "</p></body></html>"))
	}))
	defer srv.Close()

	c := NewClient(Config{Timeout: 5 * time.Second, MaxBytes: 4096})
	defer c.Close()

	res, err := c.Fetch(context.Background(), srv.URL, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.HTML) > 4096 {
		t.Fatalf("body not capped: %d bytes", len(res.HTML))
	}
}

// WHAT: CleanText collapses horizontal whitespace and runs of blank lines
// while preserving line structure.
func TestCleanText(t *testing.T) {
	in := "Heading\t\t  here   \n\n\n\n\nBody  text\n"
	got := CleanText(in)
	want := "Heading here\n\nBody text"
	if got != want {
		t.Fatalf("CleanText = %q, want %q", got, want)
	}
}

// WHAT: extraction falls back gracefully on minimal markup instead of
// failing the fetch.
func TestExtractMinimalMarkup(t *testing.T) {
	ex, err := Extract("<html><body><p>Just one line.</p></body></html>", "https://acme.example/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(ex.Text, "Just one line.") {
		t.Fatalf("Text = %q", ex.Text)
	}
}
