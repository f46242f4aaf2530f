package provider

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Transport is the outbound HTTP configuration shared by adapters. It is
// built once at start-up and passed to each adapter explicitly.
type Transport struct {
	ProxyURL string
	Timeout  time.Duration
}

// HTTPClient builds a client that routes through ProxyURL when set.
func (t Transport) HTTPClient() (*http.Client, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if t.ProxyURL != "" {
		proxy, err := url.Parse(t.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if proxy.Scheme == "" || proxy.Host == "" {
			return nil, fmt.Errorf("proxy url %q must include scheme and host", t.ProxyURL)
		}
		base.Proxy = http.ProxyURL(proxy)
	} else {
		base.Proxy = nil
	}
	return &http.Client{
		Transport: base,
		Timeout:   timeoutOrDefault(t.Timeout) + 5*time.Second,
	}, nil
}
