package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/woozymasta/masterlist/internal/models"
)

type clock struct {
	t  time.Time
	mu sync.Mutex
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type tenants struct {
	byID map[int64]models.Tenant
	err  error
}

func newTenants(ts ...models.Tenant) *tenants {
	out := &tenants{byID: make(map[int64]models.Tenant)}
	for _, t := range ts {
		out.byID[t.ID] = t
	}
	return out
}

func (f *tenants) ResolveTenant(_ context.Context, id int64) (models.Tenant, bool, error) {
	if f.err != nil {
		return models.Tenant{}, false, f.err
	}
	t, ok := f.byID[id]
	return t, ok, nil
}

func (f *tenants) Tenants(context.Context) ([]models.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Tenant, 0, len(f.byID))
	for _, t := range f.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func intp(v int) *int { return &v }

func record(id string, players, slots int) models.ServerRecord {
	return models.ServerRecord{
		ServerID:       id,
		Name:           "Server " + id,
		Address:        "192.0.2.10",
		Port:           27015,
		Type:           models.TypeDedicated,
		Status:         models.StatusOnline,
		CurrentPlayers: players,
		MaxPlayers:     slots,
		Region:         "us-east",
	}
}

func ids(recs []models.ServerRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ServerID)
	}
	sort.Strings(out)
	return out
}
