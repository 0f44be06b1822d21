package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

// HttpService exposes the security-operations surface: the gated admin
// login plus the moderation and introspection endpoints. Business CRUD
// routes live in their own services and simply mount the same gate
// handlers.
type HttpService struct {
	context.DefaultService

	jwtSvc     *JWTService
	authSvc    *AuthService
	gateSvc    *GateService
	eventSvc   *SecurityEventService
	reputation *IPReputationService
	sweeper    *SweeperService

	port   int
	server *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	svc.authSvc = svc.Service(AUTH_SVC).(*AuthService)
	svc.gateSvc = svc.Service(GATE_SVC).(*GateService)
	svc.eventSvc = svc.Service(SECURITY_EVENT_SVC).(*SecurityEventService)
	svc.reputation = svc.Service(IP_REPUTATION_SVC).(*IPReputationService)
	svc.sweeper = svc.Service(SWEEPER_SVC).(*SweeperService)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return shared.ResponseInternalError(c, err)
		},
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	v1 := app.Group("/api/v1")

	// Authentication-class route: the gate consults the brute force
	// lockout here and nowhere else.
	v1.Post("/auth/login", svc.gateSvc.Handler(true), svc.login)

	security := v1.Group("/security", svc.gateSvc.Handler(false), svc.requiredAuth())
	security.Get("/events", svc.recentEvents)
	security.Get("/stats", svc.securityStats)
	security.Post("/blacklist", svc.addBlacklist)
	security.Delete("/blacklist/:ip", svc.removeBlacklist)
	security.Post("/cleanup", svc.runCleanup)

	svc.server = app

	log.WithField("port", svc.port).Info("HTTP server started")
	return app.Listen(fmt.Sprintf(":%d", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *HttpService) requiredAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := svc.jwtSvc.ExtractTokenFromHeader(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return shared.ResponseJSON(c, http.StatusUnauthorized, "Unauthorized", err.Error())
		}

		userID, err := svc.jwtSvc.VerifyJWTToken(token)
		if err != nil || userID == "" {
			return shared.ResponseJSON(c, http.StatusUnauthorized, "Unauthorized", "Invalid JWT token")
		}

		c.Locals(shared.UserID, userID)
		return c.Next()
	}
}

func (svc *HttpService) login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseBadRequest(c, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Validation failed", dto.FormatValidationErrors(err))
	}

	pair, err := svc.authSvc.Login(c.UserContext(), req, getClientIP(c))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return shared.ResponseUnauthorized(c)
		}
		return shared.ResponseInternalError(c, err)
	}

	return shared.ResponseOK(c, pair)
}

func (svc *HttpService) recentEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	req := dto.RecentEventsRequest{Limit: limit}
	if err := req.Validate(); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Validation failed", dto.FormatValidationErrors(err))
	}

	return shared.ResponseOK(c, svc.eventSvc.Recent(limit))
}

func (svc *HttpService) securityStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	active, err := svc.reputation.ActiveBlacklist(ctx)
	if err != nil {
		return shared.ResponseInternalError(c, err)
	}

	critical, err := svc.eventSvc.CountSince(ctx, time.Now().Add(-time.Hour), []string{shared.SeverityCritical})
	if err != nil {
		log.WithError(err).Warn("Could not count recent critical events")
	}

	return shared.ResponseOK(c, dto.SecurityStats{
		ActiveBlacklist:  active,
		RecentEvents:     len(svc.eventSvc.Recent(svc.eventSvc.cfg.EventLogCapacity)),
		CriticalLastHour: critical,
		Timestamp:        time.Now().UTC(),
	})
}

func (svc *HttpService) addBlacklist(c *fiber.Ctx) error {
	var req dto.BlacklistRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseBadRequest(c, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Validation failed", dto.FormatValidationErrors(err))
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := svc.reputation.Blacklist(c.UserContext(), req.IP, req.Reason, duration); err != nil {
		return shared.ResponseInternalError(c, err)
	}

	return shared.ResponseOK(c, fiber.Map{"ip": req.IP})
}

func (svc *HttpService) removeBlacklist(c *fiber.Ctx) error {
	ip := c.Params("ip")
	if ip == "" {
		return shared.ResponseBadRequest(c, "Missing IP")
	}

	if err := svc.reputation.Unblacklist(c.UserContext(), ip); err != nil {
		return shared.ResponseInternalError(c, err)
	}

	return shared.ResponseOK(c, fiber.Map{"ip": ip})
}

func (svc *HttpService) runCleanup(c *fiber.Ctx) error {
	svc.sweeper.RunCleanup(c.UserContext())
	return shared.ResponseOK(c, fiber.Map{"message": "Cleanup completed"})
}
