package main

import (
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/services"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.SecurityConfigService{},

		&services.RedisService{},
		&services.PostgresService{},
		&services.MinIOService{},

		&services.JWTService{},
		&services.GeolocationService{},

		&services.SecurityEventService{},
		&services.RateCounterService{},
		&services.IPReputationService{},
		&services.BruteForceService{},
		&services.GeoAnomalyService{},
		&services.ThreatScoreService{},
		&services.GateService{},
		&services.AuthService{},

		&services.SweeperService{},
		&services.MonitoringService{},
		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Service configuration failed")
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("Runtime exited with error")
		return
	}
}
