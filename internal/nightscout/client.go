// Package nightscout uploads loop status to a Nightscout site so remote
// followers see pump and loop state alongside CGM entries.
package nightscout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"pumpd/pkg/types"
)

// Config carries the Nightscout connection settings.
type Config struct {
	// URL is the site base URL, e.g. https://cgm.example.com.
	URL string
	// Token is the access token; sent as the api-secret header when set.
	Token string
	// Device is the reported device name; defaults to "pumpd".
	Device string
	// Timeout bounds each upload request.
	Timeout time.Duration
}

// Client posts devicestatus documents to a Nightscout site.
type Client struct {
	http   *resty.Client
	device string
	log    zerolog.Logger
}

// New builds a client for the given site.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Device == "" {
		cfg.Device = "pumpd"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		http.SetHeader("api-secret", cfg.Token)
	}
	return &Client{http: http, device: cfg.Device, log: log}
}

// deviceStatus is the Nightscout devicestatus document shape.
type deviceStatus struct {
	Device    string      `json:"device"`
	CreatedAt string      `json:"created_at"`
	Loop      *loopStatus `json:"loop,omitempty"`
	Pump      *pumpStatus `json:"pump,omitempty"`
}

type loopStatus struct {
	Timestamp      string     `json:"timestamp"`
	ClosedLoop     bool       `json:"closed_loop"`
	OverrideActive bool       `json:"override_active"`
	LastLoop       string     `json:"last_loop,omitempty"`
	Failure        string     `json:"failure,omitempty"`
	BolusProgress  *float64   `json:"bolus_progress,omitempty"`
	TempBasal      *tempBasal `json:"temp_basal,omitempty"`
}

type tempBasal struct {
	Rate     float64 `json:"rate"`
	Duration int     `json:"duration"`
}

type pumpStatus struct {
	Bolusing  bool     `json:"bolusing"`
	Suspended bool     `json:"suspended"`
	Reservoir *float64 `json:"reservoir,omitempty"`
	Battery   *int     `json:"battery,omitempty"`
}

// UploadStatus posts the current loop snapshot as a devicestatus document.
func (c *Client) UploadStatus(ctx context.Context, st types.StatusResponse) error {
	now := time.Unix(st.ServerTimeUnix, 0).UTC()
	doc := deviceStatus{
		Device:    c.device,
		CreatedAt: now.Format(time.RFC3339),
		Loop: &loopStatus{
			Timestamp:      now.Format(time.RFC3339),
			ClosedLoop:     st.ClosedLoop,
			OverrideActive: st.OverrideActive,
			Failure:        st.LastError,
			BolusProgress:  st.BolusProgress,
		},
	}
	if st.LastLoopUnix > 0 {
		doc.Loop.LastLoop = time.Unix(st.LastLoopUnix, 0).UTC().Format(time.RFC3339)
	}
	if st.TempBasal != nil {
		doc.Loop.TempBasal = &tempBasal{Rate: st.TempBasal.Rate, Duration: st.TempBasal.DurationMinutes}
	}
	if st.Pump != nil {
		doc.Pump = &pumpStatus{
			Bolusing:  st.Pump.Bolusing,
			Suspended: st.Pump.Suspended,
			Reservoir: st.Pump.ReservoirUnits,
			Battery:   st.Pump.BatteryPercent,
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(doc).
		Post("/api/v1/devicestatus")
	if err != nil {
		return fmt.Errorf("nightscout upload: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("nightscout upload: status %d", resp.StatusCode())
	}
	c.log.Debug().Int("status", resp.StatusCode()).Msg("devicestatus uploaded")
	return nil
}
