// handlers/errors.go - Domain error to HTTP response mapping
package handlers

import (
	"errors"
	"log"

	"snapquest/services"

	"github.com/gofiber/fiber/v2"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Ordered: the first match wins.
var errorMappings = []errorMapping{
	{services.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{services.ErrNotAuthorized, fiber.StatusForbidden, "not_authorized"},
	{services.ErrIneligible, fiber.StatusForbidden, "ineligible"},
	{services.ErrSelfVote, fiber.StatusForbidden, "self_vote"},
	{services.ErrInvalidTransition, fiber.StatusConflict, "invalid_transition"},
	{services.ErrAlreadyVoted, fiber.StatusConflict, "already_voted"},
	{services.ErrVotingClosed, fiber.StatusConflict, "voting_closed"},
	{services.ErrIncompleteBallot, fiber.StatusUnprocessableEntity, "incomplete_ballot"},
	{services.ErrInvalidInput, fiber.StatusBadRequest, "invalid_input"},
}

// respondError writes the JSON error envelope for err.
func respondError(c *fiber.Ctx, err error) error {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		body := fiber.Map{
			"success": false,
			"error":   err.Error(),
			"code":    m.code,
		}

		var ineligible *services.IneligibleError
		if errors.As(err, &ineligible) {
			body["reason"] = ineligible.Reason
		}
		var ballot *services.IncompleteBallotError
		if errors.As(err, &ballot) && len(ballot.Missing) > 0 {
			body["missing"] = ballot.Missing
		}
		return c.Status(m.status).JSON(body)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"success": false,
			"error":   fe.Message,
			"code":    "request_error",
		})
	}

	log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
	message := err.Error()
	if production {
		message = "An error occurred. Please try again later."
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    "internal",
	})
}

// ErrorHandler is the fiber app error handler. Handlers return domain errors
// and this renders them.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return respondError(c, err)
}

func badRequest(message string) error {
	return fiber.NewError(fiber.StatusBadRequest, message)
}
