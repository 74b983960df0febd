package models

import "time"

// CurrentStats is the short lived aggregate of a tenant's live servers.
type CurrentStats struct {
	ActiveServers  int `json:"active_servers"`
	CurrentPlayers int `json:"current_players"`
	PeakPlayers    int `json:"peak_players"`
}

// HourlyBucket is one hour of history for a tenant, keyed by "YYYY-MM-DD-HH".
type HourlyBucket struct {
	RecordedAt    time.Time `json:"recorded_at"`
	ExpiresAt     time.Time `json:"-"`
	Key           string    `json:"key"`
	ActiveServers int       `json:"active_servers"`
	PeakPlayers   int       `json:"peak_players"`
}

// HourlyStat is one entry of the trailing hourly history.
type HourlyStat struct {
	Timestamp     time.Time `json:"timestamp"`
	Hour          string    `json:"hour"`
	ActiveServers int       `json:"active_servers"`
	PeakPlayers   int       `json:"peak_players"`
}

// MemoryReport is the advisory memory usage of a tenant namespace.
// The limit is informational only and never enforced against the store.
type MemoryReport struct {
	UsedFormatted  string  `json:"used_formatted"`
	LimitFormatted string  `json:"limit_formatted"`
	UsedBytes      int64   `json:"used_bytes"`
	LimitBytes     int64   `json:"limit_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// TenantOverview is one row of the monitoring overview.
type TenantOverview struct {
	Name         string `json:"name"`
	AppID        int64  `json:"app_id"`
	ServerCount  int    `json:"server_count"`
	TotalPlayers int    `json:"total_players"`
	IsActive     bool   `json:"is_active"`
}

// Page is a slice of server records with pagination metadata.
type Page struct {
	Items      []ServerRecord `json:"data"`
	Page       int            `json:"current_page"`
	PerPage    int            `json:"per_page"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// GameStats is the admin stats view of one game.
type GameStats struct {
	Hourly         []HourlyStat `json:"hourly"`
	Game           Tenant       `json:"game"`
	Memory         MemoryReport `json:"memory"`
	Current        CurrentStats `json:"current"`
	PeakPlayers24h int          `json:"peak_players_24h"`
	PeakServers24h int          `json:"peak_servers_24h"`
}

// Overview is the monitoring summary over every game.
type Overview struct {
	Games        []TenantOverview `json:"games"`
	TotalGames   int              `json:"total_games"`
	ActiveGames  int              `json:"active_games"`
	TotalServers int              `json:"total_servers"`
	TotalPlayers int              `json:"total_players"`
}

// Dashboard is the overview plus the summed hourly history of active games.
type Dashboard struct {
	Hourly   []HourlyStat `json:"hourly"`
	Overview Overview     `json:"overview"`
}
