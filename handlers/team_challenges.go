// handlers/team_challenges.go - Team Challenge System Handlers
package handlers

import (
	"snapquest/services"

	"github.com/gofiber/fiber/v2"
)

// ================== CHALLENGE CRUD ENDPOINTS ==================

// CreateChallenge creates a new team challenge (leader only)
// POST /api/teams/:id/challenges
func CreateChallenge(c *fiber.Ctx) error {
	var req services.ChallengeInput
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	challenge, err := svc.Teams.CreateChallenge(c.UserContext(), currentUser(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":   true,
		"message":   "Challenge created successfully",
		"challenge": challenge,
	})
}

// GetTeamChallenges lists a team's challenges
// GET /api/teams/:id/challenges
func GetTeamChallenges(c *fiber.Ctx) error {
	challenges, err := svc.Teams.ListChallenges(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"challenges": challenges,
		"count":      len(challenges),
	})
}

// GetChallenge returns one challenge with its statistics
// GET /api/challenges/:id
func GetChallenge(c *fiber.Ctx) error {
	challenge, err := svc.Teams.GetChallenge(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"challenge": challenge,
	})
}

// GetParticipations returns a challenge's contribution ledger
// GET /api/challenges/:id/participations
func GetParticipations(c *fiber.Ctx) error {
	parts, err := svc.Teams.ListParticipations(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"participations": parts,
	})
}

// DeleteChallenge removes a challenge and its ledger (leader only)
// DELETE /api/challenges/:id
func DeleteChallenge(c *fiber.Ctx) error {
	if err := svc.Teams.DeleteChallenge(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Challenge deleted successfully",
	})
}

// ================== PARTICIPATION ENDPOINTS ==================

// JoinChallenge adds the caller to a challenge
// POST /api/challenges/:id/join
func JoinChallenge(c *fiber.Ctx) error {
	res, err := svc.Teams.JoinChallenge(c.UserContext(), currentUser(c), c.Params("id"))
	return recalcResponse(c, res, err)
}

// LeaveChallenge removes the caller from a challenge
// POST /api/challenges/:id/leave
func LeaveChallenge(c *fiber.Ctx) error {
	res, err := svc.Teams.LeaveChallenge(c.UserContext(), currentUser(c), c.Params("id"))
	return recalcResponse(c, res, err)
}

// Contribute records the caller's progress
// POST /api/challenges/:id/contribute
func Contribute(c *fiber.Ctx) error {
	var req struct {
		Amount *float64 `json:"amount"`
	}
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.Amount == nil {
		return respondError(c, badRequest("amount is required"))
	}

	res, err := svc.Teams.Contribute(c.UserContext(), currentUser(c), c.Params("id"), *req.Amount)
	return recalcResponse(c, res, err)
}

// RecalculateChallenge re-derives a challenge's progress from its ledger
// POST /api/challenges/:id/recalculate
func RecalculateChallenge(c *fiber.Ctx) error {
	res, err := svc.Teams.Recalculate(c.UserContext(), currentUser(c), c.Params("id"))
	return recalcResponse(c, res, err)
}

// ================== STATUS ENDPOINTS ==================

// PauseChallenge pauses an active challenge (leader only)
// POST /api/challenges/:id/pause
func PauseChallenge(c *fiber.Ctx) error {
	challenge, err := svc.Teams.PauseChallenge(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"challenge": challenge,
	})
}

// ResumeChallenge resumes a paused challenge (leader only)
// POST /api/challenges/:id/resume
func ResumeChallenge(c *fiber.Ctx) error {
	challenge, err := svc.Teams.ResumeChallenge(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"challenge": challenge,
	})
}

func recalcResponse(c *fiber.Ctx, res *services.RecalcResult, err error) error {
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"challenge": res.Challenge,
		"completed": res.Completed,
	})
}
