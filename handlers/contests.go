// handlers/contests.go - Daily contest handlers
package handlers

import (
	"snapquest/services"

	"github.com/gofiber/fiber/v2"
)

// EnsureContest returns the contest for a date, creating it on first use
// POST /api/contests
func EnsureContest(c *fiber.Ctx) error {
	var req struct {
		Date    string `json:"date"`
		QuestID string `json:"quest_id"`
	}
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.Date == "" {
		req.Date = svc.Contests.Today()
	}

	contest, err := svc.Contests.EnsureContest(c.UserContext(), req.Date, req.QuestID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"contest": contest,
	})
}

// GetContest returns a contest and its current voting state
// GET /api/contests/:id
func GetContest(c *fiber.Ctx) error {
	contest, err := svc.Contests.GetContest(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"contest":      contest,
		"voting_state": svc.Contests.Window.State(contest),
	})
}

// GetVotingState reports whether ballots are accepted right now
// GET /api/contests/:id/voting
func GetVotingState(c *fiber.Ctx) error {
	contest, err := svc.Contests.GetContest(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":          true,
		"contest_id":       contest.ID,
		"state":            svc.Contests.Window.State(contest),
		"is_voting_active": svc.Contests.Window.IsVotingActive(contest),
	})
}

// CreateSubmission enters the caller's photo into a contest
// POST /api/contests/:id/submissions
func CreateSubmission(c *fiber.Ctx) error {
	var req services.SubmissionInput
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	sub, err := svc.Contests.CreateSubmission(c.UserContext(), currentUser(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"submission": sub,
	})
}

// SubmitBallot records the caller's vote on a submission
// POST /api/submissions/:id/ballots
func SubmitBallot(c *fiber.Ctx) error {
	var ballot services.Ballot
	if err := parseBody(c, &ballot); err != nil {
		return respondError(c, err)
	}
	ballot.VoterID = currentUser(c)

	vote, sub, err := svc.Contests.SubmitBallot(c.UserContext(), c.Params("id"), ballot)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"vote":       vote,
		"submission": sub,
	})
}

// GetContestLeaderboard ranks a contest's submissions
// GET /api/contests/:id/leaderboard?limit=20
func GetContestLeaderboard(c *fiber.Ctx) error {
	subs, err := svc.Contests.Leaderboard(c.UserContext(), c.Params("id"), c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"leaderboard": subs,
		"count":       len(subs),
	})
}

// FinalizeContest records the winner once the contest day is over
// POST /api/contests/:id/finalize
func FinalizeContest(c *fiber.Ctx) error {
	contest, finalized, err := svc.Contests.FinalizeContest(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"contest":   contest,
		"finalized": finalized,
	})
}
