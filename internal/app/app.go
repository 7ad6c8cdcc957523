// Package app wires configuration, storage and services into the HTTP API
// and the background scheduler.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"habitheroes/internal/clock"
	"habitheroes/internal/config"
	"habitheroes/internal/database"
	"habitheroes/internal/handlers"
	"habitheroes/internal/scheduler"
	"habitheroes/internal/security"
	"habitheroes/internal/service"
)

// App holds the assembled services
type App struct {
	Config *config.Config
	DB     *database.DB
	Clock  clock.Clock

	Auth        *service.AuthService
	Families    *service.FamilyService
	Habits      *service.HabitService
	Completions *service.CompletionService
	Rewards     *service.RewardService
	Controls    *service.ControlsService
	Challenges  *service.ChallengeService
	Sync        *service.SyncService
	Backup      *service.BackupService

	Scheduler *scheduler.Scheduler
	Limiter   *security.RateLimiter
}

// New builds every service on top of an open, migrated database
func New(ctx context.Context, cfg *config.Config, db *database.DB, clk clock.Clock) (*App, error) {
	emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, cfg.EmailDebug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email service: %w", err)
	}
	var notifier service.Notifier = service.NopNotifier{}
	if emailService.IsEnabled() {
		notifier = emailService
	}

	stores := service.NewStores(db)
	a := &App{Config: cfg, DB: db, Clock: clk}
	a.Sync = service.NewSyncService(stores, clk)
	a.Families = service.NewFamilyService(stores, clk)
	a.Auth = service.NewAuthService(stores, clk, a.Families, cfg.SessionDuration, cfg.ChildSessionDuration)
	a.Habits = service.NewHabitService(stores, clk)
	a.Completions = service.NewCompletionService(stores, clk, a.Sync, notifier, cfg.Location())
	a.Rewards = service.NewRewardService(stores, clk, a.Sync, notifier)
	a.Controls = service.NewControlsService(stores, clk, a.Sync, cfg.Location())
	a.Challenges = service.NewChallengeService(stores, clk, a.Sync)
	a.Backup = service.NewBackupService(db, clk)

	a.Scheduler = scheduler.New(clk,
		&scheduler.RecurringRewardJob{Rewards: a.Rewards, Every: cfg.RecurringRewardInterval},
		&scheduler.AutoApprovalJob{Completions: a.Completions, Every: cfg.AutoApprovalInterval},
		&scheduler.SessionCleanupJob{
			Sessions:  a.Auth,
			Events:    a.Sync,
			Retention: cfg.SyncEventRetention,
			Every:     cfg.SessionCleanupInterval,
		},
	)
	a.Limiter = security.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow, clk)

	return a, nil
}

// Handler builds the HTTP API
func (a *App) Handler() http.Handler {
	cfg := a.Config
	sessions := security.NewCookieSessions(cfg.SessionSecret, cfg.SecureCookies)
	csrf := security.NewCSRFGenerator(cfg.CSRFSecret, cfg.CSRFEnabled)

	google := handlers.NewGoogleAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectBaseURL)
	if google == nil {
		log.Println("Google sign-in disabled: GOOGLE_CLIENT_ID not configured")
	}

	return handlers.NewRouter(handlers.Handlers{
		Middleware: handlers.NewMiddleware(a.Auth, a.Controls, sessions, csrf, a.Limiter),
		Auth:       handlers.NewAuthHandler(a.Auth, a.Families, sessions, csrf, a.Clock, google, cfg.FrontendURL),
		Family:     handlers.NewFamilyHandler(a.Families, a.Controls),
		Habits:     handlers.NewHabitHandler(a.Habits, a.Completions),
		Rewards:    handlers.NewRewardHandler(a.Rewards),
		Challenges: handlers.NewChallengeHandler(a.Challenges),
		Sync:       handlers.NewSyncHandler(a.Sync, a.Families),
		DB:         a.DB,
	}, cfg.AllowedOrigins)
}
