// handlers/routes.go - HTTP route registration
package handlers

import (
	"time"

	"snapquest/database"
	"snapquest/middleware"
	"snapquest/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Services are the dependencies the handlers call.
type Services struct {
	Store       database.Store
	Users       *services.UserService
	Eligibility *services.EligibilityEvaluator
	Attempts    *services.AttemptTracker
	Teams       *services.TeamService
	Contests    *services.ContestService
}

type Config struct {
	JWTSecret  string
	Production bool
	Limiter    *middleware.RateLimiter // nil disables limiting
}

var (
	svc        Services
	production bool
)

// Setup registers every route on app.
func Setup(app *fiber.App, s Services, cfg Config) {
	svc = s
	production = cfg.Production

	auth := middleware.Auth(cfg.JWTSecret)
	limit := middleware.RateLimit(cfg.Limiter)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
			"version":   "1.0.0",
		})
	})

	api := app.Group("/api", auth, ensureCaller)

	// User routes
	api.Get("/users/me", GetCurrentUser)
	api.Get("/users/me/progression", GetProgression)
	api.Get("/users/me/notifications", GetNotifications)

	// Quest attempt routes
	api.Get("/quests/:id/eligibility", GetEligibility)
	api.Post("/quests/:id/attempts", limit, StartAttempt)
	api.Get("/attempts/:id", GetAttempt)
	api.Post("/attempts/:id/cancel", limit, CancelAttempt)
	api.Post("/attempts/:id/complete", limit, CompleteAttempt)

	// Team routes
	api.Post("/teams", limit, CreateTeam)
	api.Get("/teams/:id", GetTeam)
	api.Get("/teams/:id/members", GetTeamMembers)
	api.Post("/teams/:id/join", limit, JoinTeam)
	api.Post("/teams/:id/leave", limit, LeaveTeam)

	// Team Challenge routes
	api.Post("/teams/:id/challenges", limit, CreateChallenge)
	api.Get("/teams/:id/challenges", GetTeamChallenges)
	api.Get("/challenges/:id", GetChallenge)
	api.Get("/challenges/:id/participations", GetParticipations)
	api.Post("/challenges/:id/join", limit, JoinChallenge)
	api.Post("/challenges/:id/leave", limit, LeaveChallenge)
	api.Post("/challenges/:id/pause", limit, PauseChallenge)
	api.Post("/challenges/:id/resume", limit, ResumeChallenge)
	api.Post("/challenges/:id/contribute", limit, Contribute)
	api.Post("/challenges/:id/recalculate", limit, RecalculateChallenge)
	api.Delete("/challenges/:id", limit, DeleteChallenge)

	// Contest routes
	api.Post("/contests", limit, EnsureContest)
	api.Get("/contests/:id", GetContest)
	api.Get("/contests/:id/voting", GetVotingState)
	api.Post("/contests/:id/submissions", limit, CreateSubmission)
	api.Get("/contests/:id/leaderboard", GetContestLeaderboard)
	api.Post("/contests/:id/finalize", limit, FinalizeContest)
	api.Post("/submissions/:id/ballots", limit, SubmitBallot)

	// Live updates
	app.Use("/ws", requireUpgrade)
	app.Get("/ws", auth, websocket.New(StreamChanges))
}

// ensureCaller registers the token's subject on first sight.
func ensureCaller(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}
	username := middleware.GetUsername(c)
	if username == "" {
		username = userID
	}
	if _, err := svc.Users.EnsureUser(c.UserContext(), userID, username); err != nil {
		return respondError(c, err)
	}
	return c.Next()
}

func currentUser(c *fiber.Ctx) string {
	id, _ := middleware.GetUserID(c)
	return id
}

func parseBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dst); err != nil {
		return badRequest("Invalid request body")
	}
	return nil
}
