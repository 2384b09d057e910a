// Package upstream fetches patient, sensor and measurement data from the
// glucose server.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/st-keller/librefollow/diag"
	"github.com/st-keller/librefollow/types"
)

// Endpoint names as used for connectivity tracking and metrics.
const (
	EndpointPatient     = "patient-info"
	EndpointSensor      = "sensor-info"
	EndpointMeasurement = "measurement"
)

const maxBodyBytes = 1 << 20

// Client issues single requests. It holds no state besides its settings and
// is safe for concurrent use.
type Client struct {
	baseURL      string
	unit         types.Unit
	http         *http.Client
	connectivity *diag.ConnectivityTracker
}

// New creates a Client. connectivity may be nil.
func New(baseURL string, unit types.Unit, httpClient *http.Client, connectivity *diag.ConnectivityTracker) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		unit:         unit,
		http:         httpClient,
		connectivity: connectivity,
	}
}

// Unit returns the unit selected for measurements.
func (c *Client) Unit() types.Unit {
	return c.unit
}

// PatientInfo fetches {base}/patient-info.
func (c *Client) PatientInfo(ctx context.Context) (types.PatientInfo, error) {
	obj, err := c.getJSON(ctx, EndpointPatient, "/patient-info")
	if err != nil {
		return types.PatientInfo{}, err
	}
	return ParsePatient(obj), nil
}

// SensorInfo fetches {base}/sensor-info.
func (c *Client) SensorInfo(ctx context.Context) (types.SensorInfo, error) {
	obj, err := c.getJSON(ctx, EndpointSensor, "/sensor-info")
	if err != nil {
		return types.SensorInfo{}, err
	}
	return ParseSensor(obj)
}

// Measurement fetches the measurement endpoint for the configured unit. On
// ErrTimestamp the returned measurement is still usable.
func (c *Client) Measurement(ctx context.Context) (types.Measurement, error) {
	obj, err := c.getJSON(ctx, EndpointMeasurement, c.unit.Path())
	if err != nil {
		return types.Measurement{}, err
	}
	return ParseMeasurement(obj, c.unit)
}

// getJSON performs a GET and decodes a JSON object body.
func (c *Client) getJSON(ctx context.Context, endpoint, path string) (map[string]any, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request %s: %v", ErrNetwork, url, err)
	}
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(startTime)
	if err != nil {
		c.connectivity.TrackFailure(endpoint, url, latency, err.Error())
		return nil, fmt.Errorf("%w: GET %s: %w", ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		errorMsg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		c.connectivity.TrackFailure(endpoint, url, latency, errorMsg)
		return nil, fmt.Errorf("%w: GET %s: %s", ErrNetwork, url, errorMsg)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		c.connectivity.TrackFailure(endpoint, url, latency, "decode: "+err.Error())
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformed, url, err)
	}
	obj, ok := body.(map[string]any)
	if !ok {
		c.connectivity.TrackFailure(endpoint, url, latency, "body is not a JSON object")
		return nil, fmt.Errorf("%w: %s: body is not a JSON object", ErrMalformed, url)
	}

	c.connectivity.TrackSuccess(endpoint, url, latency)
	return obj, nil
}
