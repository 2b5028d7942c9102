// handlers/users.go - Caller profile handlers
package handlers

import (
	"snapquest/services"

	"github.com/gofiber/fiber/v2"
)

// GetCurrentUser returns the caller's profile
// GET /api/users/me
func GetCurrentUser(c *fiber.Ctx) error {
	user, err := svc.Users.GetUser(c.UserContext(), currentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
	})
}

// GetProgression returns the caller's level standing
// GET /api/users/me/progression
func GetProgression(c *fiber.Ctx) error {
	progression, err := services.GetProgression(c.UserContext(), svc.Store, currentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"progression": progression,
	})
}

// GetNotifications returns the caller's recent notifications
// GET /api/users/me/notifications?limit=50
func GetNotifications(c *fiber.Ctx) error {
	notes, err := services.ListNotifications(c.UserContext(), svc.Store, currentUser(c), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"notifications": notes,
		"count":         len(notes),
	})
}
