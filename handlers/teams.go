// handlers/teams.go - Team HTTP Handlers
package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// ================== TEAM ENDPOINTS ==================

// CreateTeam creates a new team owned by the caller
// POST /api/teams
func CreateTeam(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	team, err := svc.Teams.CreateTeam(c.UserContext(), currentUser(c), req.Name, req.Description)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Team created successfully",
		"team":    team,
	})
}

// GetTeam returns an active team
// GET /api/teams/:id
func GetTeam(c *fiber.Ctx) error {
	team, err := svc.Teams.GetTeam(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"team":    team,
	})
}

// GetTeamMembers lists a team's active members
// GET /api/teams/:id/members
func GetTeamMembers(c *fiber.Ctx) error {
	members, err := svc.Teams.GetTeamMembers(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"members": members,
		"count":   len(members),
	})
}

// JoinTeam adds the caller to a team
// POST /api/teams/:id/join
func JoinTeam(c *fiber.Ctx) error {
	member, err := svc.Teams.JoinTeam(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Joined team successfully",
		"member":  member,
	})
}

// LeaveTeam removes the caller from a team and its challenges
// POST /api/teams/:id/leave
func LeaveTeam(c *fiber.Ctx) error {
	if err := svc.Teams.LeaveTeam(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Left team successfully",
	})
}
