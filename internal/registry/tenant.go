package registry

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/masterlist/internal/metrics"
	"github.com/woozymasta/masterlist/internal/models"
)

// TenantResolver maps a public game id onto a tenant. Absence is reported with ok=false.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, appID int64) (tenant models.Tenant, ok bool, err error)
	Tenants(ctx context.Context) ([]models.Tenant, error)
}

// SchemaLookup returns the active metadata schema of a named instance of a game.
type SchemaLookup interface {
	InstanceSchema(ctx context.Context, appID int64, name string) ([]models.SchemaField, bool, error)
}

// Namespace returns the storage namespace of a tenant.
func Namespace(tenantID int64) string {
	return "game:" + strconv.FormatInt(tenantID, 10)
}

// gate resolves a tenant and rejects unknown or inactive ones.
// The two conditions stay distinct in errors, logs and metrics.
func (r *Registry) gate(ctx context.Context, tenantID int64) (models.Tenant, error) {
	t, ok, err := r.tenants.ResolveTenant(ctx, tenantID)
	if err != nil {
		return models.Tenant{}, fmt.Errorf("resolve game %d: %w", tenantID, err)
	}

	var reason string
	switch {
	case !ok:
		reason, err = "tenant_unknown", fmt.Errorf("%w: %d", models.ErrTenantUnknown, tenantID)
	case !t.Active:
		reason, err = "tenant_inactive", fmt.Errorf("%w: %d", models.ErrTenantInactive, tenantID)
	default:
		return t, nil
	}

	metrics.TenantRejections.WithLabelValues(reason).Inc()
	log.Debug().Int64("game_id", tenantID).Str("reason", reason).Msg("game rejected")
	return models.Tenant{}, err
}

// lookup resolves a tenant without the active gate, for admin views.
func (r *Registry) lookup(ctx context.Context, tenantID int64) (models.Tenant, error) {
	t, ok, err := r.tenants.ResolveTenant(ctx, tenantID)
	if err != nil {
		return models.Tenant{}, fmt.Errorf("resolve game %d: %w", tenantID, err)
	}
	if !ok {
		return models.Tenant{}, fmt.Errorf("%w: %d", models.ErrTenantUnknown, tenantID)
	}
	return t, nil
}

// MemoryReport estimates the bytes held for a tenant and relates them to its advisory limit.
// The limit is only reported, nothing is evicted when it is exceeded.
func (r *Registry) MemoryReport(ctx context.Context, t models.Tenant) (models.MemoryReport, error) {
	used, err := r.store.Usage(ctx, t.ID)
	if err != nil {
		return models.MemoryReport{}, err
	}
	used += r.stats.Usage(t.ID)

	limitMB := t.MemoryLimitMB
	if limitMB < 1 {
		limitMB = 1
	}
	limit := int64(limitMB) * humanize.MiByte

	return models.MemoryReport{
		UsedBytes:      used,
		LimitBytes:     limit,
		UsedFormatted:  humanize.IBytes(uint64(used)),
		LimitFormatted: humanize.IBytes(uint64(limit)),
		UsagePercent:   math.Round(float64(used)/float64(limit)*10000) / 100,
	}, nil
}
