// Package httpclient builds the outbound HTTP clients used to reach AI vendors,
// geolocation services and remote image locations.
package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Options configures a client
type Options struct {
	Timeout      time.Duration
	HTTPProxy    string
	HTTPSProxy   string
	NoProxy      string
	MaxRedirects int
}

// New returns an *http.Client honouring the proxy and redirect settings
func New(opts Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = ProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy)

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
	if opts.MaxRedirects > 0 {
		limit := opts.MaxRedirects
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	}
	return client
}

// ProxyFunc selects explicit proxies when configured and falls back to the
// environment (HTTP_PROXY, HTTPS_PROXY, NO_PROXY) otherwise. Hosts listed in
// noProxy (comma separated, suffix match) always bypass explicit proxies.
func ProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	bypass := splitNoProxy(noProxy)

	return func(req *http.Request) (*url.URL, error) {
		host := req.URL.Hostname()
		for _, suffix := range bypass {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return nil, nil
			}
		}
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

func splitNoProxy(noProxy string) []string {
	var hosts []string
	for _, h := range strings.Split(noProxy, ",") {
		h = strings.TrimPrefix(strings.TrimSpace(h), ".")
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
