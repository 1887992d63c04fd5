// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package resolver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Prober turns one declared source URL into a decodable media URL, or fails.
// Implementations must honor the context deadline.
type Prober interface {
	Probe(ctx context.Context, sourceURL string) (mediaURL string, err error)
}

// mediaContentTypes are response content types accepted as directly
// decodable media.
var mediaContentTypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"video/",
	"application/octet-stream",
}

// playlistPattern extracts an HLS playlist URL embedded in a hosting page.
var playlistPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+\.m3u8[^\s"'<>\\]*`)

// DefaultProber probes RTSP sources with a TCP dial and HTTP(S) sources
// with a GET. An HTML hosting page is scraped for an embedded HLS playlist
// URL; anything served with a media content type passes through unchanged.
type DefaultProber struct {
	Client *http.Client

	// maxPageBytes bounds how much of a hosting page is read while
	// looking for an embedded playlist.
	maxPageBytes int64
}

// NewDefaultProber returns a prober using the given HTTP client. A nil
// client gets a default with no global timeout; per-probe deadlines come
// from the context.
func NewDefaultProber(client *http.Client) *DefaultProber {
	if client == nil {
		client = &http.Client{}
	}
	return &DefaultProber{Client: client, maxPageBytes: 512 << 10}
}

// Probe implements Prober.
func (p *DefaultProber) Probe(ctx context.Context, sourceURL string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("unparseable source url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "rtsp", "rtsps", "srt":
		return p.probeDial(ctx, u)
	case "http", "https":
		return p.probeHTTP(ctx, sourceURL)
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// probeDial checks a socket-level source is reachable. The decoder owns the
// protocol handshake; reachability is the only thing worth verifying here.
func (p *DefaultProber) probeDial(ctx context.Context, u *url.URL) (string, error) {
	host := u.Host
	if u.Port() == "" {
		switch strings.ToLower(u.Scheme) {
		case "rtsp", "rtsps":
			host = net.JoinHostPort(u.Hostname(), "554")
		case "srt":
			host = net.JoinHostPort(u.Hostname(), "8890")
		}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", host, err)
	}
	_ = conn.Close()
	return u.String(), nil
}

func (p *DefaultProber) probeHTTP(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("source returned HTTP %d", resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	for _, mt := range mediaContentTypes {
		if strings.HasPrefix(contentType, mt) {
			return sourceURL, nil
		}
	}

	// Hosting page: look for an embedded playlist URL.
	if strings.HasPrefix(contentType, "text/html") {
		body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxPageBytes))
		if err != nil {
			return "", fmt.Errorf("read hosting page: %w", err)
		}
		if m := playlistPattern.Find(body); m != nil {
			return string(m), nil
		}
		return "", fmt.Errorf("hosting page has no embedded playlist")
	}

	return "", fmt.Errorf("unsupported content type %q", contentType)
}
