package campus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"schedoosh/internal/geofence"
)

// Client calls the campus map service for the building directory.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, FetchBuildings serves a small built-in
// directory so the geofence path works without the campus service.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchBuildings downloads the current building list.
func (c *Client) FetchBuildings(ctx context.Context) ([]geofence.Building, error) {
	if c.Skip {
		return mockBuildings(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/buildings", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("campus service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("campus service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out []geofence.Building
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("campus service returned no buildings")
	}
	return out, nil
}

// Health checks if the campus service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("campus service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("campus service unhealthy: %s", resp.Status)
	}

	return nil
}

func mockBuildings() []geofence.Building {
	return []geofence.Building{
		{Code: "ITB", Name: "Information Technology Building", Lat: 43.2585, Lon: -79.9201, RadiusMeters: 150},
		{Code: "JHE", Name: "John Hodgins Engineering", Lat: 43.2610, Lon: -79.9203},
		{Code: "MDCL", Name: "Michael DeGroote Centre", Lat: 43.2606, Lon: -79.9179, RadiusMeters: 120},
	}
}
