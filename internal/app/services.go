package app

import (
	"fmt"

	"github.com/yungbote/readsession-backend/internal/modules/reading"
	"github.com/yungbote/readsession-backend/internal/observability"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
	"github.com/yungbote/readsession-backend/internal/realtime/bus"
	"github.com/yungbote/readsession-backend/internal/services"
)

type Services struct {
	Auth    services.AuthService
	Reading *reading.Usecases

	// Bus carries committed session changes to the SSE hub, across
	// instances when Redis is configured.
	Bus bus.Bus
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	authService, err := services.NewAuthService(log, services.AuthConfig{
		JWTSecretKey: cfg.JWTSecretKey,
		Issuer:       cfg.JWTIssuer,
		Leeway:       cfg.JWTLeeway,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}

	policy, err := reading.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return Services{}, fmt.Errorf("load reading policy: %w", err)
	}
	log.Info("Reading policy loaded",
		"file", cfg.PolicyFile,
		"min_events_for_post", policy.MinEventsForPost,
		"min_target_words", policy.MinTargetWords,
	)

	sseBus, err := wireBus(log, cfg)
	if err != nil {
		return Services{}, err
	}

	deps := reading.UsecasesDeps{
		Log:      log,
		Sessions: repos.Sessions,
		Policy:   policy,
		Notifier: reading.NewBusNotifier(sseBus, log),
	}
	if metrics != nil {
		deps.Metrics = metrics
	}

	return Services{
		Auth:    authService,
		Reading: reading.NewUsecases(deps),
		Bus:     sseBus,
	}, nil
}

func wireBus(log *logger.Logger, cfg Config) (bus.Bus, error) {
	if cfg.Redis.Addr == "" {
		log.Info("REDIS_ADDR not set; using in-process realtime bus")
		return bus.NewLocalBus(), nil
	}
	b, err := bus.NewRedisBus(log, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis bus: %w", err)
	}
	return b, nil
}
