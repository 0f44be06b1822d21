package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

// GeoLocation is one resolved observation for an IP. Proxy and Hosting come
// straight from the provider and are best-effort only.
type GeoLocation struct {
	IP          string  `json:"ip"`
	CountryName string  `json:"country_name"`
	CountryCode string  `json:"country_code"`
	CityName    string  `json:"city_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Proxy       bool    `json:"proxy"`
	Hosting     bool    `json:"hosting"`
}

// GeoLookup resolves an IP to a location. A nil result with nil error means
// the IP could not be resolved; callers must treat that as "no signal".
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (*GeoLocation, error)
}

type GeolocationService struct {
	appContext.DefaultService
	httpClient   *http.Client
	apiURL       string
	store        StateStore
	cacheExpiry  time.Duration
	storeTimeout time.Duration
}

const GEOLOCATION_SVC = "geolocation_svc"

func (svc GeolocationService) Id() string {
	return GEOLOCATION_SVC
}

func (svc *GeolocationService) Configure(ctx *appContext.Context) error {
	svc.httpClient = &http.Client{
		Timeout: 10 * time.Second,
	}
	svc.apiURL = "http://ip-api.com/json"
	svc.cacheExpiry = 24 * time.Hour
	svc.storeTimeout = ctx.Service(SECURITY_CONFIG_SVC).(*SecurityConfigService).Config().StoreTimeout
	return svc.DefaultService.Configure(ctx)
}

func (svc *GeolocationService) Start() error {
	svc.store = svc.Service(REDIS_SVC).(*RedisService)
	return nil
}

// Lookup resolves an IP via ip-api.com, caching results in redis. Private
// and loopback addresses resolve to nil.
func (svc *GeolocationService) Lookup(ctx context.Context, ip string) (*GeoLocation, error) {
	if ip == "" || ip == "127.0.0.1" || ip == "::1" {
		return nil, nil
	}

	cacheKey := shared.KeyPrefixGeoCache + ip

	if svc.store != nil {
		getCtx, cancel := svc.storeCtx(ctx)
		cached, err := svc.store.Get(getCtx, cacheKey)
		cancel()
		if err == nil && cached != "" {
			var loc GeoLocation
			if err := sonic.Unmarshal([]byte(cached), &loc); err == nil {
				log.WithField("ip", ip).Debug("Geolocation cache hit")
				return &loc, nil
			}
		}
	}

	// The proxy and hosting fields are what the threat scorer uses for its
	// best-effort VPN/datacenter-origin signal.
	url := fmt.Sprintf("%s/%s?fields=status,country,countryCode,city,lat,lon,proxy,hosting,query", svc.apiURL, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to get geolocation")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).WithField("ip", ip).Warn("Geolocation API returned non-200 status")
		return nil, fmt.Errorf("geolocation API returned status %d", resp.StatusCode)
	}

	var result struct {
		Status      string  `json:"status"`
		Country     string  `json:"country"`
		CountryCode string  `json:"countryCode"`
		City        string  `json:"city"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		Proxy       bool    `json:"proxy"`
		Hosting     bool    `json:"hosting"`
		Query       string  `json:"query"`
	}

	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to decode geolocation response")
		return nil, err
	}

	if result.Status != "success" {
		log.WithField("status", result.Status).WithField("ip", ip).Debug("Geolocation lookup failed")
		return nil, nil
	}

	loc := &GeoLocation{
		IP:          result.Query,
		CountryName: result.Country,
		CountryCode: result.CountryCode,
		CityName:    result.City,
		Latitude:    result.Lat,
		Longitude:   result.Lon,
		Proxy:       result.Proxy,
		Hosting:     result.Hosting,
	}

	if svc.store != nil {
		setCtx, cancel := svc.storeCtx(ctx)
		if err := svc.store.Set(setCtx, cacheKey, loc, svc.cacheExpiry); err != nil {
			log.WithError(err).WithField("ip", ip).Warn("Failed to cache geolocation result")
		}
		cancel()
	}

	return loc, nil
}

// storeCtx bounds cache accesses so a hung store cannot stall a lookup; the
// outbound HTTP call keeps its own client timeout.
func (svc *GeolocationService) storeCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if svc.storeTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, svc.storeTimeout)
}

func (svc *GeolocationService) ClearCache(ctx context.Context, ip string) error {
	if svc.store == nil {
		return fmt.Errorf("state store not available")
	}

	return svc.store.Del(ctx, shared.KeyPrefixGeoCache+ip)
}
