// Package notify delivers new-message pushes through the Acrobits push
// notification manager (PNM).
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the public PNM endpoint.
const DefaultEndpoint = "https://pnm.cloudsoftphone.com/pnm2"

// PNM posts NotifyTextMessage requests.
type PNM struct {
	Endpoint string
	Client   *http.Client
}

// NewPNM returns a PNM client for endpoint, falling back to DefaultEndpoint.
func NewPNM(endpoint string) *PNM {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &PNM{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify asks PNM to wake the app identified by appID on deviceToken.
func (p *PNM) Notify(ctx context.Context, deviceToken, appID string) error {
	form := url.Values{
		"verb":        {"NotifyTextMessage"},
		"AppId":       {appID},
		"DeviceToken": {deviceToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build pnm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("pnm request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("pnm status %d", resp.StatusCode)
	}
	return nil
}
