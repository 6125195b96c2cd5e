package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const probeTimeout = time.Second

// CDPEndpoint returns the DevTools URL the download worker attaches to.
func CDPEndpoint(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// ProbeCDP reports whether a browser with an open DevTools socket is already
// listening on the port. Readiness is a 200 from /json/version within one
// second; anything else counts as not ready.
func ProbeCDP(ctx context.Context, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	url := CDPEndpoint(port) + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
