package services

import (
	"context"
	"math"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

const earthRadiusKm = 6371.0

// GeoAnomalyService flags impossible travel: two observations of the same
// IP more than the configured distance apart inside the anomaly window.
// Only the most recent prior observation is kept (last write wins), never a
// history.
type GeoAnomalyService struct {
	appContext.DefaultService

	cfg    *SecurityConfig
	store  StateStore
	lookup GeoLookup
	events EventAppender
}

const GEO_ANOMALY_SVC = "geo_anomaly_svc"

func (svc GeoAnomalyService) Id() string {
	return GEO_ANOMALY_SVC
}

func (svc *GeoAnomalyService) Configure(ctx *appContext.Context) error {
	svc.cfg = ctx.Service(SECURITY_CONFIG_SVC).(*SecurityConfigService).Config()
	return svc.DefaultService.Configure(ctx)
}

func (svc *GeoAnomalyService) Start() error {
	svc.store = svc.Service(REDIS_SVC).(*RedisService)
	svc.lookup = svc.Service(GEOLOCATION_SVC).(*GeolocationService)
	svc.events = svc.Service(SECURITY_EVENT_SVC).(*SecurityEventService)
	return nil
}

// Score contributes points for a large location jump and, best-effort, for
// proxy/datacenter origin. Unresolvable IPs contribute nothing. The current
// observation always overwrites the stored GeoRecord, even when the request
// is being cancelled: it is accounting state, not request output.
func (svc *GeoAnomalyService) Score(ctx context.Context, ip string) int {
	loc, err := svc.lookup.Lookup(ctx, ip)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Debug("Geolocation unavailable, skipping geo signal")
		return 0
	}
	if loc == nil {
		return 0
	}

	score := 0

	// Best-effort VPN/datacenter signal straight from the provider.
	if loc.Proxy || loc.Hosting {
		score += svc.cfg.ProxyOriginWeight
	}

	now := time.Now().UTC()
	geoKey := shared.KeyPrefixGeoRecord + ip

	readCtx, readCancel := context.WithTimeout(ctx, svc.cfg.StoreTimeout)
	prev := svc.previousRecord(readCtx, geoKey)
	readCancel()

	if prev != nil {
		age := now.Sub(prev.ObservedAt)
		if age >= 0 && age < svc.cfg.GeoAnomalyWindow {
			distance := haversineKm(prev.Latitude, prev.Longitude, loc.Latitude, loc.Longitude)
			if distance > svc.cfg.GeoAnomalyDistanceKm {
				score += svc.cfg.GeoAnomalyWeight

				svc.events.Append(dto.SecurityEvent{
					Type:     shared.EventGeoAnomaly,
					Severity: shared.SeverityMedium,
					Payload: map[string]interface{}{
						"ip":          ip,
						"distance_km": math.Round(distance),
						"window_sec":  int(age.Seconds()),
						"country":     loc.CountryCode,
					},
				})
			}
		}
	}

	record := dto.GeoRecord{
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		ObservedAt: now,
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), svc.cfg.StoreTimeout)
	defer cancel()
	if err := svc.store.Set(writeCtx, geoKey, record, svc.cfg.GeoAnomalyWindow); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to update geo record")
	}

	return score
}

func (svc *GeoAnomalyService) previousRecord(ctx context.Context, key string) *dto.GeoRecord {
	raw, err := svc.store.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Geo record read unavailable")
		storeFailuresTotal.WithLabelValues("geo").Inc()
		return nil
	}
	if raw == "" {
		return nil
	}

	var record dto.GeoRecord
	if err := sonic.Unmarshal([]byte(raw), &record); err != nil {
		return nil
	}
	return &record
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
