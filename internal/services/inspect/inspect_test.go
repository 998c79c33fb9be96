package inspect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Tegath/kaleads/internal/services"
)

const landingPage = `<!doctype html><html><head>
<title>Aircall | Cloud phone system for modern businesses</title>
<meta name="description" content="Aircall is the cloud-based phone system for sales and support teams.">
<meta name="keywords" content="phone system, call center, VoIP">
<meta name="generator" content="Webflow 2024">
<script src="https://js.hs-scripts.com/123.js"></script>
<script>window.intercomSettings = {};</script>
<style>.x{color:red}</style>
</head><body>
<h1>The phone system for sales teams</h1>
<h2>Built for Heads of Sales</h2>
<p>Connect your CRM in one click.</p>
<a href="/careers">Careers - we are hiring SDRs</a>
<a href="/customers">Customers</a>
</body></html>`

func TestSummarize_ExtractsStructure(t *testing.T) {
	s, err := Summarize("https://aircall.io", landingPage)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if s.Title != "Aircall | Cloud phone system for modern businesses" {
		t.Errorf("Title = %q", s.Title)
	}
	if s.Description == "" {
		t.Error("Description should be read from meta")
	}
	if len(s.Keywords) != 3 {
		t.Errorf("Keywords = %v, want 3 entries", s.Keywords)
	}
	if len(s.Headings) != 2 || s.Headings[1] != "Built for Heads of Sales" {
		t.Errorf("Headings = %v", s.Headings)
	}
	if len(s.Links) != 2 {
		t.Errorf("Links = %v", s.Links)
	}

	want := map[string]bool{"HubSpot": true, "Intercom": true, "Webflow": true}
	for _, tech := range s.Technologies {
		delete(want, tech)
	}
	if len(want) != 0 {
		t.Errorf("technologies %v missing from %v", want, s.Technologies)
	}
}

func TestSummarize_SkipsScriptText(t *testing.T) {
	s, err := Summarize("https://x.io", landingPage)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if strings.Contains(s.Text, "intercomSettings") || strings.Contains(s.Text, "color:red") {
		t.Errorf("Text should not include script or style bodies: %q", s.Text)
	}
	if !strings.Contains(s.Text, "Connect your CRM") {
		t.Errorf("Text missing body copy: %q", s.Text)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"aircall.io", "https://aircall.io", false},
		{"http://example.com/a", "http://example.com/a", false},
		{"  ", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHTTPInspector_Inspect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(landingPage))
	}))
	defer srv.Close()

	s, err := NewHTTPInspector(srv.Client(), 0, nil).Inspect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if s.URL != srv.URL {
		t.Errorf("URL = %q, want %q", s.URL, srv.URL)
	}
}

func TestHTTPInspector_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPInspector(srv.Client(), 0, nil).Inspect(context.Background(), srv.URL)
	if !errors.Is(err, services.ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}
