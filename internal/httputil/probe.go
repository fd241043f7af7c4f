// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ProbeTimeout bounds a single content-type probe.
var ProbeTimeout = 5 * time.Second

// ProbeContentType issues a HEAD request (following redirects) and reports
// whether the response Content-Type contains any of the given markers.
// Any transport error or non-2xx status reports false.
func ProbeContentType(ctx context.Context, client *http.Client, url, userAgent string, markers ...string) bool {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	for _, m := range markers {
		if strings.Contains(ct, m) {
			return true
		}
	}
	return false
}
