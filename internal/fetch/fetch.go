// Package fetch is the only component that performs network I/O: it
// streams downloads over HTTP(S), honoring per-repo proxy and mutual TLS
// client-auth settings, and reports structured errors for the Yum
// backend's failover logic to act on.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
)

var ErrStatus = errors.New("unexpected HTTP status")

const (
	defaultRetries = 3
	retryBaseDelay = 500 * time.Millisecond
)

// Error wraps a fetch failure with enough context for the caller to
// decide on failover or ignore_errors handling (spec §4.4/§4.7).
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %q: %s: %d", e.URL, ErrStatus, e.Status)
	}

	return fmt.Sprintf("fetch %q: %s", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	if e.Status != 0 {
		return ErrStatus
	}

	return e.Err
}

// Fetcher performs streamed HTTP(S) downloads for one repo's configured
// proxy and SSL client-auth trio.
type Fetcher struct {
	client *http.Client
}

// New builds a Fetcher. proxy may be empty (no proxy). ca/cert/key must
// either all be empty or all name existing, readable files (validated
// upstream by config.Validate; New re-validates defensively).
func New(proxy, ca, cert, key string) (*Fetcher, error) {
	transport := &http.Transport{}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy url: %q (%w)", proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	if ca != "" || cert != "" || key != "" {
		tlsConfig, err := clientTLSConfig(ca, cert, key)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
		},
	}, nil
}

func clientTLSConfig(ca, cert, key string) (*tls.Config, error) {
	caBytes, err := os.ReadFile(ca)
	if err != nil {
		return nil, fmt.Errorf("failed to read ca: %q (%w)", ca, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("failed to parse ca: %q", ca)
	}

	pair, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert/key: %q, %q (%w)", cert, key, err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// DownloadBinaryFile streams rawURL to dest on fsys, returning the number
// of bytes written. The parent directory of dest must already exist.
// Transient failures (network errors, 5xx) are retried with a bounded
// exponential backoff before returning a *Error.
func (f *Fetcher) DownloadBinaryFile(ctx context.Context, fsys afero.Fs, rawURL, dest string) (int64, error) {
	var lastErr error

	for attempt := 0; attempt <= defaultRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(retryBaseDelay << (attempt - 1)):
			}
		}

		n, err := f.downloadOnce(ctx, fsys, rawURL, dest)
		if err == nil {
			return n, nil
		}

		lastErr = err

		var ferr *Error
		if errors.As(err, &ferr) && ferr.Status != 0 && ferr.Status < 500 {
			// Client errors are not transient; do not retry.
			return 0, err
		}
	}

	return 0, lastErr
}

func (f *Fetcher) downloadOnce(ctx context.Context, fsys afero.Fs, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, &Error{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &Error{URL: rawURL, Status: resp.StatusCode}
	}

	out, err := fsys.Create(dest)
	if err != nil {
		return 0, &Error{URL: rawURL, Err: fmt.Errorf("failed to create: %q (%w)", dest, err)}
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return n, &Error{URL: rawURL, Err: fmt.Errorf("failed during io: %w", err)}
	}

	if err := out.Close(); err != nil {
		return n, &Error{URL: rawURL, Err: fmt.Errorf("failed to close: %q (%w)", dest, err)}
	}

	return n, nil
}

// ExpandArch expands the literal %ARCH% token in a URL template.
func ExpandArch(urlTemplate, arch string) string {
	return strings.ReplaceAll(urlTemplate, "%ARCH%", arch)
}
