package server

import (
	"sync"
	"time"

	"github.com/woozymasta/masterlist/internal/auth"
	"github.com/woozymasta/masterlist/internal/config"
	"github.com/woozymasta/masterlist/internal/geoip"
	"github.com/woozymasta/masterlist/internal/registry"
	"github.com/woozymasta/masterlist/internal/setup"
	"github.com/woozymasta/masterlist/internal/storage"
)

// Server holds the dependencies, configuration, and runtime state required
// to handle HTTP requests and background API key usage tracking.
type Server struct {
	// registry is the in-memory server registry every client and server route reads or writes.
	registry *registry.Registry

	// catalog is the SQLite store of games, instances and API keys.
	catalog *storage.Repository

	// verifier checks HMAC signatures of server routes against the catalog keys.
	verifier *auth.Verifier

	// setup gates the admin routes until the initial setup is complete.
	setup *setup.State

	// geoip resolves a region fallback for servers registering without one.
	// A nil provider resolves nothing.
	geoip *geoip.Provider

	// limiters holds one per IP limiter set for each public route class.
	limiters map[string]*ipLimiter

	// touches is a buffered channel passing API key usage from the HMAC middleware
	// to background workers, so catalog writes never delay a heartbeat.
	touches chan touchJob

	// shutdown is a signal channel used to broadcast a stop signal to all background workers
	// during a graceful shutdown.
	shutdown chan struct{}

	// authToken is the secret token required to access administrative API endpoints.
	authToken string

	// a2sOptions holds configuration settings for probing game servers.
	a2sOptions config.A2S

	// wg is used to wait for all background workers to finish processing
	// before the server shuts down completely.
	wg sync.WaitGroup

	// stopOnce guards StopWorkers against double close.
	stopOnce sync.Once

	// queueMu orders queue sends against closing the queue.
	queueMu sync.RWMutex

	// maxBody specifies the maximum allowed size (in bytes) for incoming HTTP request bodies.
	maxBody int64

	// workers is the size of the API key usage worker pool.
	workers int

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool
}

// touchJob records that an API key signed a request at a given time.
type touchJob struct {
	At    time.Time
	KeyID string
}
