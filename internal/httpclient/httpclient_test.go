package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProxyFunc_ExplicitProxies(t *testing.T) {
	fn := ProxyFunc("http://proxy:3128", "http://secure-proxy:3129", "internal.example, .corp")

	tests := []struct {
		url  string
		want string
	}{
		{"http://api.example.com/x", "http://proxy:3128"},
		{"https://api.example.com/x", "http://secure-proxy:3129"},
		{"https://internal.example/x", ""},
		{"https://svc.corp/x", ""},
	}

	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, tt.url, nil)
		got, err := fn(req)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.url, err)
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.want {
			t.Errorf("%s: proxy = %q, want %q", tt.url, gotStr, tt.want)
		}
	}
}

func TestNew_RedirectLimit(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/again", http.StatusFound)
	}))
	defer server.Close()

	client := New(Options{Timeout: 5 * time.Second, MaxRedirects: 2})
	resp, err := client.Get(server.URL)
	if err == nil {
		_ = resp.Body.Close()
		t.Fatal("expected redirect error")
	}
}
