package services

import (
	"context"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/model"
)

// EventAppender is what the stateful security components hold to emit
// events without depending on the full event service.
type EventAppender interface {
	Append(event dto.SecurityEvent)
}

// AuditSink is the durable, unbounded record of security events.
type AuditSink interface {
	Insert(ctx context.Context, event model.SecurityEvent) error
	CountSince(ctx context.Context, since time.Time, severities []string) (int64, error)
}

// SecurityEventService keeps a bounded in-process ring buffer for live
// inspection and forwards every event to the durable sink. The ring is a
// per-process best-effort view, never authoritative; the sink is.
type SecurityEventService struct {
	appContext.DefaultService

	cfg  *SecurityConfig
	sink AuditSink

	mu   sync.Mutex
	ring []dto.SecurityEvent
	next int
	full bool
}

const SECURITY_EVENT_SVC = "security_event_svc"

func (svc SecurityEventService) Id() string {
	return SECURITY_EVENT_SVC
}

func (svc *SecurityEventService) Configure(ctx *appContext.Context) error {
	svc.cfg = ctx.Service(SECURITY_CONFIG_SVC).(*SecurityConfigService).Config()
	return svc.DefaultService.Configure(ctx)
}

func (svc *SecurityEventService) Start() error {
	svc.sink = &gormAuditSink{db: svc.Service(POSTGRES_SVC).(*PostgresService).Db()}
	svc.ring = make([]dto.SecurityEvent, svc.cfg.EventLogCapacity)
	return nil
}

// NewSecurityEventService builds an event log outside the service container.
func NewSecurityEventService(cfg *SecurityConfig, sink AuditSink) *SecurityEventService {
	return &SecurityEventService{
		cfg:  cfg,
		sink: sink,
		ring: make([]dto.SecurityEvent, cfg.EventLogCapacity),
	}
}

// Append records the event in the ring buffer and hands it to the durable
// sink off the request path. A sink failure is logged locally and never
// reaches the caller.
func (svc *SecurityEventService) Append(event dto.SecurityEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	svc.mu.Lock()
	if len(svc.ring) == 0 {
		svc.ring = make([]dto.SecurityEvent, svc.cfg.EventLogCapacity)
	}
	svc.ring[svc.next] = event
	svc.next = (svc.next + 1) % len(svc.ring)
	if svc.next == 0 {
		svc.full = true
	}
	svc.mu.Unlock()

	securityEventsTotal.WithLabelValues(event.Severity, event.Type).Inc()

	if svc.sink != nil {
		go svc.appendDurable(event)
	}
}

func (svc *SecurityEventService) appendDurable(event dto.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := ""
	if event.Payload != nil {
		if b, err := sonic.Marshal(event.Payload); err == nil {
			payload = string(b)
		}
	}

	row := model.SecurityEvent{
		ID:        event.ID,
		Type:      event.Type,
		Severity:  event.Severity,
		Payload:   payload,
		Timestamp: event.Timestamp,
		CreatedAt: time.Now().UTC(),
	}

	if err := svc.sink.Insert(ctx, row); err != nil {
		log.WithError(err).WithField("event_id", event.ID).Warn("Durable audit append failed")
	}
}

// Recent returns up to n events, newest first, from the ring buffer.
func (svc *SecurityEventService) Recent(n int) []dto.SecurityEvent {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	size := svc.next
	if svc.full {
		size = len(svc.ring)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return []dto.SecurityEvent{}
	}

	out := make([]dto.SecurityEvent, 0, n)
	for i := 1; i <= n; i++ {
		idx := (svc.next - i + len(svc.ring)) % len(svc.ring)
		out = append(out, svc.ring[idx])
	}
	return out
}

// CountSince reports durable event counts for the sweeper's health check.
func (svc *SecurityEventService) CountSince(ctx context.Context, since time.Time, severities []string) (int64, error) {
	if svc.sink == nil {
		return 0, nil
	}
	return svc.sink.CountSince(ctx, since, severities)
}

type gormAuditSink struct {
	db *gorm.DB
}

func (s *gormAuditSink) Insert(ctx context.Context, event model.SecurityEvent) error {
	return s.db.WithContext(ctx).Create(&event).Error
}

func (s *gormAuditSink) CountSince(ctx context.Context, since time.Time, severities []string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.SecurityEvent{}).
		Where("timestamp >= ? AND severity IN ?", since, severities).
		Count(&count).Error
	return count, err
}
