package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/nerrad567/dysonlink/internal/discovery"
)

// DiscoveredService is one mDNS record as shown by /discovery.
type DiscoveredService struct {
	discovery.ServiceRecord

	Serial      string `json:"serial"`
	Managed     bool   `json:"managed"`
	LastSeenAgo string `json:"last_seen_ago"`
}

// handleListDiscovery returns every service seen by the mDNS browser,
// most recently seen first.
func (s *Server) handleListDiscovery(w http.ResponseWriter, _ *http.Request) {
	if s.discovery == nil {
		writeError(w, notFound("discovery disabled"))
		return
	}

	now := time.Now()
	managed := lo.Keyify(s.registry.Serials())
	services := lo.MapToSlice(s.discovery.Snapshot(), func(serial string, rec discovery.ServiceRecord) DiscoveredService {
		_, ok := managed[serial]
		return DiscoveredService{
			ServiceRecord: rec,
			Serial:        serial,
			Managed:       ok,
			LastSeenAgo:   formatDuration(now.Sub(rec.SeenAt)),
		}
	})

	sort.Slice(services, func(i, j int) bool {
		return services[i].SeenAt.After(services[j].SeenAt)
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"count":    len(services),
	})
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return plural(int(d.Minutes()), "min")
	}
	if d < 24*time.Hour {
		return plural(int(d.Hours()), "hour")
	}
	return plural(int(d.Hours()/24), "day") //nolint:mnd // 24 hours per day
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return strconv.Itoa(n) + " " + unit + "s ago"
}
