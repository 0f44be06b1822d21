package services

import (
	"context"
	"errors"
	"os"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService authenticates operators of the security admin API. Credentials
// come from the environment; the interesting part is the coupling to the
// brute force guard: every failed login counts against the source IP, every
// success resets it.
type AuthService struct {
	appContext.DefaultService

	jwtSvc     *JWTService
	bruteForce *BruteForceService

	adminUser string
	adminHash string
}

const AUTH_SVC = "auth_svc"

func (svc AuthService) Id() string {
	return AUTH_SVC
}

func (svc *AuthService) Configure(ctx *appContext.Context) error {
	svc.adminUser = os.Getenv("ADMIN_USERNAME")
	if svc.adminUser == "" {
		svc.adminUser = "admin"
	}

	svc.adminHash = os.Getenv("ADMIN_PASSWORD_HASH")
	if svc.adminHash == "" {
		return errors.New("ADMIN_PASSWORD_HASH is required (bcrypt hash)")
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthService) Start() error {
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	svc.bruteForce = svc.Service(BRUTE_FORCE_SVC).(*BruteForceService)
	return nil
}

// Login validates credentials and feeds the brute force guard either way.
func (svc *AuthService) Login(ctx context.Context, req dto.LoginRequest, ip string) (*dto.TokenPair, error) {
	if req.Username != svc.adminUser ||
		bcrypt.CompareHashAndPassword([]byte(svc.adminHash), []byte(req.Password)) != nil {
		svc.bruteForce.RecordFailure(ctx, ip)
		log.WithField("ip", ip).WithField("username", req.Username).Info("Failed admin login")
		return nil, ErrInvalidCredentials
	}

	svc.bruteForce.RecordSuccess(ctx, ip)

	pair, err := svc.jwtSvc.GenerateTokenPair(req.Username)
	if err != nil {
		return nil, err
	}

	log.WithField("ip", ip).Info("Admin login successful")
	return pair, nil
}
