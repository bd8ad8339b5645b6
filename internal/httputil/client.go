// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"net/http"
	"time"
)

// NewClient returns an http.Client with the given timeout. A zero timeout
// falls back to 60 s.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Send performs req once and returns the response only for 2xx statuses.
// Transport failures and non-2xx responses come back as *Error; the body of
// a rejected response is closed here.
func Send(client *http.Client, req *http.Request, op string) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, Transport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, FromResponse(op, resp)
	}
	return resp, nil
}
