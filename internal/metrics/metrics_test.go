package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if harvestDocumentsTotal == nil || harvestDeniesTotal == nil ||
		harvestCandidatesTotal == nil || harvestSpecsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	// A simple check to see if a metric can be used.
	harvestDocumentsTotal.WithLabelValues("test.com", "fetched").Inc()
	if val := testutil.ToFloat64(harvestDocumentsTotal.WithLabelValues("test.com", "fetched")); val != 1 {
		t.Errorf("Expected harvestDocumentsTotal to be 1, got %f", val)
	}

	ObserveGateDeny("private_ip")
	if val := testutil.ToFloat64(harvestDeniesTotal.WithLabelValues("private_ip")); val != 1 {
		t.Errorf("Expected harvestDeniesTotal to be 1, got %f", val)
	}

	ObserveCandidates("regex", 3)
	ObserveCandidates("regex", 0)
	if val := testutil.ToFloat64(harvestCandidatesTotal.WithLabelValues("regex")); val != 3 {
		t.Errorf("Expected harvestCandidatesTotal to be 3, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
