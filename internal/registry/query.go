package registry

import (
	"net/url"
	"sort"
	"strconv"

	"github.com/woozymasta/masterlist/internal/models"
)

// Pagination bounds for the monitoring listing.
const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// Filter is the client side server query. Unset fields do not constrain.
type Filter struct {
	MaxPing    *int
	ServerType *models.ServerType
	MaxPlayers *int
	Region     string
	HasPlayers bool
	NotFull    bool
}

// Match applies every predicate conjunctively. Servers that are not online never match.
func (f Filter) Match(rec models.ServerRecord) bool {
	if !rec.Status.IsAvailable() {
		return false
	}
	if f.MaxPing != nil && rec.Ping != nil && *rec.Ping > *f.MaxPing {
		return false
	}
	if f.Region != "" && rec.Region != f.Region {
		return false
	}
	if f.ServerType != nil && rec.Type != *f.ServerType {
		return false
	}
	if f.MaxPlayers != nil && rec.MaxPlayers > *f.MaxPlayers {
		return false
	}
	if f.HasPlayers && rec.CurrentPlayers == 0 {
		return false
	}
	if f.NotFull && rec.IsFull() {
		return false
	}
	return true
}

// Apply returns the records matching f. Order follows the input, which for a store
// scan is unspecified.
func Apply(recs []models.ServerRecord, f Filter) []models.ServerRecord {
	out := make([]models.ServerRecord, 0, len(recs))
	for _, rec := range recs {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// ParseFilter reads a filter from query parameters:
// max_ping, region, type, max_players, has_players, not_full.
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter
	errs := models.ValidationErrors{}

	if v := q.Get("max_ping"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs.Add("max_ping", "The max_ping must be a non-negative integer.")
		} else {
			f.MaxPing = &n
		}
	}

	f.Region = q.Get("region")

	if v := q.Get("type"); v != "" {
		t, err := models.ParseServerType(v)
		if err != nil {
			errs.Add("type", "The type must be one of listen, dedicated.")
		} else {
			f.ServerType = &t
		}
	}

	if v := q.Get("max_players"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs.Add("max_players", "The max_players must be a positive integer.")
		} else {
			f.MaxPlayers = &n
		}
	}

	if q.Has("has_players") {
		b, err := parseBool(q.Get("has_players"))
		if err != nil {
			errs.Add("has_players", "The has_players must be a boolean.")
		}
		f.HasPlayers = b
	}

	if q.Has("not_full") {
		b, err := parseBool(q.Get("not_full"))
		if err != nil {
			errs.Add("not_full", "The not_full must be a boolean.")
		}
		f.NotFull = b
	}

	return f, errs.Err()
}

func parseBool(v string) (bool, error) {
	switch v {
	case "", "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no":
		return false, nil
	default:
		return strconv.ParseBool(v)
	}
}

// Paginate sorts records by server id for stable pages and slices one page out.
// page is clamped to >= 1 and perPage to 1..MaxPerPage (0 means DefaultPerPage).
func Paginate(recs []models.ServerRecord, page, perPage int) models.Page {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].ServerID < recs[j].ServerID })

	total := len(recs)
	pages := (total + perPage - 1) / perPage
	items := []models.ServerRecord{}
	// compare pages before multiplying, a huge page would overflow the offset
	if page <= pages {
		offset := (page - 1) * perPage
		items = recs[offset:min(offset+perPage, total)]
	}

	return models.Page{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: pages,
	}
}
