// handlers/quests.go - Quest eligibility and attempt lifecycle handlers
package handlers

import (
	"snapquest/models"
	"snapquest/services"

	"github.com/gofiber/fiber/v2"
)

// GetEligibility reports whether the caller may start the quest now
// GET /api/quests/:id/eligibility
func GetEligibility(c *fiber.Ctx) error {
	result, err := svc.Eligibility.CanAttempt(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"eligibility": result,
	})
}

// StartAttempt opens an in-progress attempt
// POST /api/quests/:id/attempts
func StartAttempt(c *fiber.Ctx) error {
	var req struct {
		Location models.GeoPoint `json:"location"`
	}
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	attempt, err := svc.Attempts.Start(c.UserContext(), currentUser(c), c.Params("id"), req.Location)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"attempt": attempt,
	})
}

// GetAttempt returns one of the caller's attempts
// GET /api/attempts/:id
func GetAttempt(c *fiber.Ctx) error {
	attempt, err := ownAttempt(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"attempt": attempt,
	})
}

// CancelAttempt abandons an in-progress attempt
// POST /api/attempts/:id/cancel
func CancelAttempt(c *fiber.Ctx) error {
	attempt, err := svc.Attempts.Cancel(c.UserContext(), c.Params("id"), currentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"attempt": attempt,
	})
}

// CompleteAttempt finishes an attempt and grants its reward
// POST /api/attempts/:id/complete
func CompleteAttempt(c *fiber.Ctx) error {
	var req struct {
		SubmissionID string `json:"submission_id"`
	}
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if _, err := ownAttempt(c); err != nil {
		return respondError(c, err)
	}

	result, err := svc.Attempts.Complete(c.UserContext(), c.Params("id"), req.SubmissionID)
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{
		"success":     true,
		"attempt":     result.Attempt,
		"reward":      result.Reward,
		"progression": result.Progression,
		"challenges":  result.Challenges,
	}
	if result.ContributionErr != nil {
		resp["warning"] = "Some team challenges could not be updated"
	}
	return c.JSON(resp)
}

// ownAttempt loads the attempt named in the path and checks the caller owns it.
func ownAttempt(c *fiber.Ctx) (*models.QuestAttempt, error) {
	attempt, err := svc.Attempts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if attempt.UserID != currentUser(c) {
		return nil, services.ErrNotAuthorized
	}
	return attempt, nil
}
