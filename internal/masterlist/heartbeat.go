// Package masterlist sends a periodic heartbeat to an optional public
// server-list aggregator (C11), entirely decoupled from room operation.
package masterlist

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-retryablehttp"
)

// Report is the JSON body POSTed on every heartbeat tick.
type Report struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	MOTD        string `json:"motd"`
	RoomCount   int    `json:"room_count"`
	PlayerCount int    `json:"player_count"`
}

// Source supplies the live counts for each heartbeat; it is implemented
// by the lobby registry.
type Source interface {
	RoomCount() int
	UserCount() int
}

// Heartbeat POSTs a Report to url on a fixed interval using a retrying
// HTTP client, so a transient DNS hiccup or master-list outage backs off
// and retries instead of silently going stale.
type Heartbeat struct {
	url      string
	name     string
	address  string
	motd     string
	interval time.Duration

	source Source
	client *retryablehttp.Client
	log    logr.Logger
}

// New builds a Heartbeat. The caller owns starting and stopping it via
// Run.
func New(url, name, address, motd string, interval time.Duration, source Source, log logr.Logger) *Heartbeat {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil // we log ourselves, at Info, after the last retry fails or on an error status

	return &Heartbeat{
		url:      url,
		name:     name,
		address:  address,
		motd:     motd,
		interval: interval,
		source:   source,
		client:   client,
		log:      log,
	}
}

// Run sends a heartbeat immediately, then on every tick of interval,
// until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	h.send(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.send(ctx)
		}
	}
}

func (h *Heartbeat) send(ctx context.Context) {
	report := Report{
		Name:        h.name,
		Address:     h.address,
		MOTD:        h.motd,
		RoomCount:   h.source.RoomCount(),
		PlayerCount: h.source.UserCount(),
	}
	body, err := json.Marshal(report)
	if err != nil {
		h.log.Error(err, "failed to marshal master-list heartbeat")
		return
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", h.url, bytes.NewReader(body))
	if err != nil {
		h.log.Error(err, "failed to build master-list heartbeat request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Info("master list unreachable after retries", "url", h.url, "err", err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		h.log.Info("master list rejected heartbeat", "url", h.url, "status", resp.StatusCode)
	}
}
