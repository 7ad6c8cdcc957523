package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"habitheroes/internal/security"
)

// Pinger reports whether the database is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers is everything the router dispatches to
type Handlers struct {
	Middleware *Middleware
	Auth       *AuthHandler
	Family     *FamilyHandler
	Habits     *HabitHandler
	Rewards    *RewardHandler
	Challenges *ChallengeHandler
	Sync       *SyncHandler
	DB         Pinger
}

// NewRouter builds the HTTP API. Every route except /healthz lives under /api.
func NewRouter(h Handlers, allowedOrigins []string) http.Handler {
	m := h.Middleware

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", security.CSRFHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", health(h.DB))

	r.Route("/api", func(r chi.Router) {
		r.Use(m.LoadPrincipal)

		r.Route("/auth", func(r chi.Router) {
			r.With(m.RateLimit).Post("/register", h.Auth.Register)
			r.With(m.RateLimit).Post("/login", h.Auth.Login)
			r.With(m.RateLimit).Post("/child-login", h.Auth.ChildLogin)
			r.With(m.CSRFProtect).Post("/logout", h.Auth.Logout)
			r.With(m.RequireAuth).Get("/me", h.Auth.Me)
			r.With(m.RequireAuth).Get("/csrf", h.Auth.CSRFToken)
			r.Get("/google/start", h.Auth.StartGoogle)
			r.Get("/google/callback", h.Auth.GoogleCallback)
		})

		r.With(m.RequireAuth).Get("/catalog", h.Rewards.Catalog)

		// Parent routes
		r.Group(func(r chi.Router) {
			r.Use(m.RequireParent, m.CSRFProtect)

			r.Get("/family", h.Auth.Family)
			r.Post("/families/join", h.Auth.JoinFamily)

			r.Get("/children", h.Family.ListChildren)
			r.Post("/children", h.Family.CreateChild)
			r.Get("/children/{id}", h.Family.GetChild)
			r.Put("/children/{id}", h.Family.UpdateChild)
			r.Delete("/children/{id}", h.Family.DeleteChild)
			r.Post("/children/{id}/regenerate-pin", h.Family.RegeneratePIN)
			r.Get("/children/{id}/controls", h.Family.GetControls)
			r.Put("/children/{id}/controls", h.Family.UpdateControls)
			r.Get("/approval-settings", h.Family.GetApprovalSettings)
			r.Put("/approval-settings", h.Family.UpdateApprovalSettings)

			r.Get("/master-habits", h.Habits.ListMasterHabits)
			r.Post("/master-habits", h.Habits.CreateMasterHabit)
			r.Put("/master-habits/{id}", h.Habits.UpdateMasterHabit)
			r.Delete("/master-habits/{id}", h.Habits.DeleteMasterHabit)
			r.Post("/master-habits/{id}/assign", h.Habits.AssignMasterHabit)
			r.Post("/children/{id}/habits", h.Habits.CreateHabit)
			r.Put("/habits/{id}", h.Habits.UpdateHabit)
			r.Delete("/habits/{id}", h.Habits.DeleteHabit)
			r.Post("/habit-completions/{id}/approve", h.Habits.Approve)
			r.Post("/habit-completions/{id}/reject", h.Habits.Reject)
			r.Get("/pending-habits/all", h.Habits.ListPending)

			r.Post("/rewards", h.Rewards.CreateReward)
			r.Put("/rewards/{id}", h.Rewards.UpdateReward)
			r.Delete("/rewards/{id}", h.Rewards.DeleteReward)
			r.Post("/reward-claims/{id}/approve", h.Rewards.ApproveClaim)
			r.Post("/reward-claims/{id}/reject", h.Rewards.RejectClaim)
			r.Get("/children/{id}/transactions", h.Rewards.ListTransactions)
			r.Post("/children/{id}/adjust-points", h.Rewards.AdjustPoints)
			r.Get("/children/{id}/balance", h.Rewards.Balance)
			r.Get("/balances/reconcile", h.Rewards.Reconcile)

			r.Post("/children/{id}/challenges", h.Challenges.CreateChallenge)
			r.Delete("/challenges/{id}", h.Challenges.DeleteChallenge)

			r.Post("/sync/register-device", h.Sync.RegisterDevice)
			r.Get("/sync/family-data", h.Sync.FamilyData)
			r.Post("/sync/mark-completed", h.Sync.MarkCompleted)
		})

		// Parent or child routes
		r.Group(func(r chi.Router) {
			r.Use(m.RequireParentOrChild, m.CSRFProtect)

			r.Get("/children/{id}/habits", h.Habits.ListHabits)
			r.Get("/children/{id}/completions", h.Habits.ListCompletions)
			r.Post("/children/{id}/reload", h.Habits.Reload)
			r.Post("/habits/{id}/complete", h.Habits.Complete)
			r.Get("/habits/{id}/streak", h.Habits.Streak)
			r.Get("/rewards", h.Rewards.ListRewards)
			r.Get("/reward-claims", h.Rewards.ListClaims)
			r.Get("/children/{id}/challenges", h.Challenges.ListChallenges)
			r.Post("/challenges/{id}/complete", h.Challenges.Complete)
			r.Get("/sync/child-family-data", h.Sync.ChildFamilyData)
		})

		// Child routes
		r.Group(func(r chi.Router) {
			r.Use(m.RequireChild, m.CSRFProtect)

			r.Post("/rewards/{id}/claim", h.Rewards.Claim)
			r.Post("/shop/unlock", h.Rewards.Unlock)
			r.Post("/challenges/{id}/accept", h.Challenges.Accept)
		})
	})

	return r
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			respondWithError(w, http.StatusServiceUnavailable, "database unavailable", "Health check", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
