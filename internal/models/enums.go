package models

import "fmt"

// ServerStatus is the advertised state of a game server.
type ServerStatus uint8

// Known server statuses. The zero value is not a valid status.
const (
	StatusOnline ServerStatus = iota + 1
	StatusOffline
	StatusStarting
	StatusFull

	statusEnd
)

type statusMeta struct {
	name      string
	label     string
	available bool
}

// statusTable is the dispatch table for every ServerStatus variant.
// A new variant must be added here, the table length is checked in tests.
var statusTable = [statusEnd]statusMeta{
	StatusOnline:   {name: "online", label: "Online", available: true},
	StatusOffline:  {name: "offline", label: "Offline"},
	StatusStarting: {name: "starting", label: "Starting"},
	StatusFull:     {name: "full", label: "Full"},
}

// ServerStatuses returns every valid status in declaration order.
func ServerStatuses() []ServerStatus {
	out := make([]ServerStatus, 0, int(statusEnd)-1)
	for s := StatusOnline; s < statusEnd; s++ {
		out = append(out, s)
	}
	return out
}

// Valid reports whether s is a known status.
func (s ServerStatus) Valid() bool {
	return s >= StatusOnline && s < statusEnd
}

// String returns the wire name of the status (e.g. "online").
func (s ServerStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", uint8(s))
	}
	return statusTable[s].name
}

// Label returns the human readable name of the status.
func (s ServerStatus) Label() string {
	if !s.Valid() {
		return "Unknown"
	}
	return statusTable[s].label
}

// IsAvailable reports whether clients may join a server in this status.
func (s ServerStatus) IsAvailable() bool {
	return s.Valid() && statusTable[s].available
}

// ParseServerStatus converts a wire name into a ServerStatus.
func ParseServerStatus(v string) (ServerStatus, error) {
	for s := StatusOnline; s < statusEnd; s++ {
		if statusTable[s].name == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown server status %q", v)
}

// MarshalText implements encoding.TextMarshaler.
func (s ServerStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid server status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ServerStatus) UnmarshalText(b []byte) error {
	v, err := ParseServerStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ServerType distinguishes listen (player hosted) servers from dedicated ones.
type ServerType uint8

// Known server types. The zero value is not a valid type.
const (
	TypeListen ServerType = iota + 1
	TypeDedicated

	typeEnd
)

type typeMeta struct {
	name  string
	label string
}

var typeTable = [typeEnd]typeMeta{
	TypeListen:    {name: "listen", label: "Listen Server"},
	TypeDedicated: {name: "dedicated", label: "Dedicated Server"},
}

// ServerTypes returns every valid server type in declaration order.
func ServerTypes() []ServerType {
	out := make([]ServerType, 0, int(typeEnd)-1)
	for t := TypeListen; t < typeEnd; t++ {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is a known server type.
func (t ServerType) Valid() bool {
	return t >= TypeListen && t < typeEnd
}

// String returns the wire name of the type (e.g. "dedicated").
func (t ServerType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("type(%d)", uint8(t))
	}
	return typeTable[t].name
}

// Label returns the human readable name of the type.
func (t ServerType) Label() string {
	if !t.Valid() {
		return "Unknown"
	}
	return typeTable[t].label
}

// ParseServerType converts a wire name into a ServerType.
func ParseServerType(v string) (ServerType, error) {
	for t := TypeListen; t < typeEnd; t++ {
		if typeTable[t].name == v {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown server type %q", v)
}

// MarshalText implements encoding.TextMarshaler.
func (t ServerType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid server type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ServerType) UnmarshalText(b []byte) error {
	v, err := ParseServerType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
