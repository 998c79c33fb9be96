package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Tegath/kaleads/internal/services"
)

const resultPage = `<html><body>
<div class="result results_links results_links_deep web-result">
  <div class="result__body">
    <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.talkdesk.com%2F&rut=x">Talkdesk</a></h2>
    <a class="result__snippet" href="#">Talkdesk is a cloud contact center, a top <b>Aircall</b> alternative.</a>
  </div>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://ringcentral.com">RingCentral</a></h2>
  <a class="result__snippet">Business phone system.</a>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="">No URL</a></h2>
</div>
</body></html>`

func TestParseResults_ExtractsHits(t *testing.T) {
	got, err := ParseResults(resultPage, 10)
	if err != nil {
		t.Fatalf("ParseResults: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Title != "Talkdesk" {
		t.Errorf("Title = %q, want Talkdesk", got[0].Title)
	}
	if got[0].URL != "https://www.talkdesk.com/" {
		t.Errorf("URL = %q, want unwrapped redirect", got[0].URL)
	}
	if got[0].Snippet != "Talkdesk is a cloud contact center, a top Aircall alternative." {
		t.Errorf("Snippet = %q", got[0].Snippet)
	}
}

func TestParseResults_RespectsMax(t *testing.T) {
	got, err := ParseResults(resultPage, 1)
	if err != nil {
		t.Fatalf("ParseResults: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d results, want 1", len(got))
	}
}

func TestDuckDuckGo_Search(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(resultPage))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestsPerSecond = 0
	d := NewDuckDuckGo(cfg, srv.Client(), nil)

	results, err := d.Search(context.Background(), "Aircall competitors")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "Aircall competitors" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestDuckDuckGo_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, services.ErrRateLimited},
		{http.StatusBadGateway, services.ErrServiceUnavailable},
		{http.StatusForbidden, services.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			cfg := DefaultConfig()
			cfg.BaseURL = srv.URL
			_, err := NewDuckDuckGo(cfg, srv.Client(), nil).Search(context.Background(), "x")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDuckDuckGo_EmptyQuery(t *testing.T) {
	_, err := NewDuckDuckGo(DefaultConfig(), nil, nil).Search(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestDisabled_Search(t *testing.T) {
	_, err := Disabled{}.Search(context.Background(), "x")
	if !errors.Is(err, services.ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}
