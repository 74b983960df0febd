// Package game provides functionality to query game servers using the Source Engine Query (A2S) protocol.
package game

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/masterlist/internal/config"
	"github.com/woozymasta/masterlist/internal/models"
)

// ErrUnprobeable is returned for records that carry no usable address.
var ErrUnprobeable = errors.New("server has no probeable address")

// Probe is the live answer of a registered server next to what it last reported.
type Probe struct {
	Info       *a2s.Info `json:"info"`
	ServerID   string    `json:"server_id"`
	Address    string    `json:"address"`
	Map        string    `json:"reported_map,omitempty"`
	Players    int       `json:"reported_players"`
	MaxPlayers int       `json:"reported_max_players"`
	Latency    int64     `json:"latency_ms"`
}

// QueryServer connects to a game server via UDP and requests A2S_INFO.
// It returns server details (such as name, map, players) or an error if the server is unreachable.
func QueryServer(ip string, port int, options config.A2S) (*a2s.Info, error) {
	client, err := a2s.New(ip, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	client.BufferSize = options.BufferSize
	client.Timeout = options.Timeout

	return client.GetInfo()
}

// ProbeRecord queries the address a server registered with.
func ProbeRecord(rec models.ServerRecord, options config.A2S) (Probe, error) {
	if rec.Address == "" || rec.Port < 1 {
		return Probe{}, ErrUnprobeable
	}

	start := time.Now()
	info, err := QueryServer(rec.Address, rec.Port, options)
	if err != nil {
		return Probe{}, err
	}

	return Probe{
		Info:       info,
		ServerID:   rec.ServerID,
		Address:    net.JoinHostPort(rec.Address, strconv.Itoa(rec.Port)),
		Map:        rec.Map,
		Players:    rec.CurrentPlayers,
		MaxPlayers: rec.MaxPlayers,
		Latency:    time.Since(start).Milliseconds(),
	}, nil
}
