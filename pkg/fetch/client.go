package fetch

import (
	"fmt"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webfetch/pkg/config"
)

// NewClient creates the shared HTTP client. The dialer timeout is the connect
// timeout (DNS + TCP), while the client timeout bounds a whole attempt including
// the body transfer. Requests go through the configured proxy when one is set.
func NewClient(fetchCfg config.FetchConfig, cfg config.HTTPClientConfig, log *logrus.Entry) (*http.Client, error) {
	log.Debug("Initializing HTTP client...")

	proxyURL, err := config.ParseProxyURL(fetchCfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   fetchCfg.ConnectTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		ResponseHeaderTimeout:  fetchCfg.TotalTimeout,
		MaxResponseHeaderBytes: 1 << 20,
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
		log.WithField("proxy_host", proxyURL.Host).Info("Routing requests through proxy")
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	client := &http.Client{
		Timeout:   fetchCfg.TotalTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
	return client, nil
}
