// Package models defines the data structures shared by the registry, the catalog and the HTTP API.
package models

import (
	"maps"
	"time"
)

// ServerRecord is the advertised state of one registered game server.
// Records are owned by the registry store; everything handed out is a copy.
type ServerRecord struct {
	LastHeartbeat  time.Time      `json:"last_heartbeat"`
	Metadata       map[string]any `json:"metadata"`
	Ping           *int           `json:"ping"`
	PeakPlayers    *int           `json:"peak_players,omitempty"`
	ServerID       string         `json:"server_id"`
	Name           string         `json:"name"`
	Address        string         `json:"address"`
	Map            string         `json:"map,omitempty"`
	Region         string         `json:"region,omitempty"`
	TenantID       int64          `json:"game_id"`
	Port           int            `json:"port"`
	CurrentPlayers int            `json:"current_players"`
	MaxPlayers     int            `json:"max_players"`
	Type           ServerType     `json:"server_type"`
	Status         ServerStatus   `json:"status"`
}

// Clone returns a deep copy of the record so callers can never alias store state.
func (r ServerRecord) Clone() ServerRecord {
	out := r
	if r.Ping != nil {
		p := *r.Ping
		out.Ping = &p
	}
	if r.PeakPlayers != nil {
		p := *r.PeakPlayers
		out.PeakPlayers = &p
	}
	out.Metadata = CloneMetadata(r.Metadata)
	return out
}

// IsFull reports whether the server has no free slots.
func (r ServerRecord) IsFull() bool {
	return r.CurrentPlayers >= r.MaxPlayers
}

// CloneMetadata deep copies a metadata map. Nested slices and maps are copied too.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		c := make([]any, len(t))
		for i := range t {
			c[i] = cloneValue(t[i])
		}
		return c
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, vv := range t {
			c[k] = cloneValue(vv)
		}
		return c
	default:
		return v
	}
}

// MergeMetadata overwrites keys of base with the keys of patch and returns a new map.
func MergeMetadata(base, patch map[string]any) map[string]any {
	out := CloneMetadata(base)
	maps.Copy(out, CloneMetadata(patch))
	return out
}

// Heartbeat is a periodic liveness and state update from a registered server.
// Nil pointers leave the stored value unchanged.
type Heartbeat struct {
	Metadata       map[string]any `json:"metadata,omitempty"`
	Map            *string        `json:"map,omitempty"`
	Ping           *int           `json:"ping,omitempty"`
	PeakPlayers    *int           `json:"peak_players,omitempty"`
	ServerID       string         `json:"server_id"`
	CurrentPlayers int            `json:"current_players"`
	Status         ServerStatus   `json:"status"`
}

// Tenant is a game as seen by the registry core.
type Tenant struct {
	Name          string `json:"name"`
	ID            int64  `json:"app_id"`
	MemoryLimitMB int    `json:"memory_limit_mb"`
	Active        bool   `json:"is_active"`
}

// Game is the catalog entity backing a tenant.
type Game struct {
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ID            int64     `json:"id"`
	AppID         int64     `json:"app_id"`
	MemoryLimitMB int       `json:"memory_limit_mb"`
	IsActive      bool      `json:"is_active"`
}

// Tenant projects the game onto the registry view.
func (g Game) Tenant() Tenant {
	return Tenant{
		ID:            g.AppID,
		Name:          g.Name,
		Active:        g.IsActive,
		MemoryLimitMB: g.MemoryLimitMB,
	}
}

// GameInput carries the writable fields of a game. Nil pointers are left unchanged on update.
type GameInput struct {
	AppID         *int64  `json:"app_id"`
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	MemoryLimitMB *int    `json:"memory_limit_mb"`
	IsActive      *bool   `json:"is_active"`
}

// SchemaField describes one expected metadata field of an instance.
type SchemaField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Instance is an optional schema overlay on a game's namespace.
type Instance struct {
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Schema      []SchemaField `json:"schema"`
	ID          int64         `json:"id"`
	GameID      int64         `json:"game_id"`
	IsActive    bool          `json:"is_active"`
}

// InstanceInput carries the writable fields of an instance.
type InstanceInput struct {
	GameID      *int64         `json:"game_id"`
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	IsActive    *bool          `json:"is_active"`
	Schema      *[]SchemaField `json:"schema"`
}

// APIKey is a server credential used to sign registry writes.
type APIKey struct {
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	Secret     string     `json:"-"`
	GameID     int64      `json:"game_id"`
	AppID      int64      `json:"app_id"`
	IsActive   bool       `json:"is_active"`
}
