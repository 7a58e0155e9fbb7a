// Package engine talks to the external dosing-engine service. The numeric
// algorithm itself lives outside this daemon; the client only moves state
// in and recommendations out.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"pumpd/pkg/types"
)

// Config carries the engine service connection settings.
type Config struct {
	// URL is the engine service base URL.
	URL string
	// Timeout bounds each call; autotune can be slow, so it gets triple.
	Timeout time.Duration
}

// Client implements the loop's Engine interface over HTTP.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// New builds a client for the given engine service.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("engine: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: http, log: log}, nil
}

type profileRequest struct {
	UseAutotune bool `json:"use_autotune"`
}

type determineBasalRequest struct {
	Current types.TempBasalState `json:"current"`
	Now     time.Time            `json:"now"`
}

// MakeProfile materializes the therapy profile on the engine service.
func (c *Client) MakeProfile(ctx context.Context, useAutotune bool) (*types.Profile, error) {
	var out types.Profile
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(profileRequest{UseAutotune: useAutotune}).
		SetResult(&out).
		Post("/profile")
	if err := checkResp(resp, err, "make profile"); err != nil {
		return nil, err
	}
	return &out, nil
}

// EstimateSensitivity re-runs autosens.
func (c *Client) EstimateSensitivity(ctx context.Context) (*types.SensitivityEstimate, error) {
	var out types.SensitivityEstimate
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Post("/autosens")
	if err := checkResp(resp, err, "autosens"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Autotune runs the daily recalibration. The service may take minutes.
func (c *Client) Autotune(ctx context.Context) (*types.AutotuneResult, error) {
	var out types.AutotuneResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Post("/autotune")
	if err := checkResp(resp, err, "autotune"); err != nil {
		return nil, err
	}
	c.log.Info().Time("ran_at", out.RanAt).Msg("autotune run completed")
	return &out, nil
}

// DetermineBasal requests a dosing recommendation. 204 means the engine has
// none, which maps to the nil-suggestion outcome.
func (c *Client) DetermineBasal(ctx context.Context, current types.TempBasalState, now time.Time) (*types.Suggestion, error) {
	var out types.Suggestion
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(determineBasalRequest{Current: current, Now: now}).
		SetResult(&out).
		Post("/determine-basal")
	if err := checkResp(resp, err, "determine basal"); err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	return &out, nil
}

func checkResp(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("engine %s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("engine %s: status %d: %s", op, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}
	return nil
}
