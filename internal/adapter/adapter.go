// Package adapter implements the source adapters: the pension coverage
// registry, the national corporate-number registry, the public job board and
// the company-profile sites. Adapters fetch one key and parse one document;
// retry, pacing and persistence belong to the driver loop.
package adapter

import (
	"io"
	"net/http"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Charset names the encoding a source serves its pages in.
type Charset string

// Supported source encodings.
const (
	CharsetUTF8     Charset = "utf-8"
	CharsetShiftJIS Charset = "shift_jis"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// decodeReader wraps r so the parser always sees UTF-8.
func decodeReader(r io.Reader, cs Charset) io.Reader {
	if cs == CharsetShiftJIS {
		return transform.NewReader(r, japanese.ShiftJIS.NewDecoder())
	}
	return r
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          16,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 20 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
