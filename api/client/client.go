// Package client calls a remote NMS server.
package client

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nvr-ai/go-nms/api"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 5 * time.Second

// Client talks to the routes of api/server.
type Client struct {
	http *resty.Client
}

// New creates a client for baseURL, e.g. "http://localhost:9080". A zero
// timeout means DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Run posts one image's candidates and returns the detections. Server-side
// input errors match the postprocess sentinels with errors.Is.
func (c *Client) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	var out api.Response
	var apiErr api.ErrorResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/nms")
	if err != nil {
		return nil, errors.Wrap(err, "post /api/nms")
	}
	if resp.IsError() {
		if apiErr.Error == "" {
			return nil, errors.Errorf("server returned %s: %s", resp.Status(), resp.String())
		}
		return nil, errors.Wrapf(apiErr.Err(), "server returned %s", resp.Status())
	}
	return &out, nil
}

// Ping checks that the server is up.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/ping")
	if err != nil {
		return errors.Wrap(err, "get /api/ping")
	}
	if resp.IsError() {
		return errors.Errorf("server returned %s", resp.Status())
	}
	return nil
}
