// services/team_service.go - Teams and team challenge administration
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"snapquest/database"
	"snapquest/models"

	"github.com/google/uuid"
)

type TeamService struct {
	store         database.Store
	contributions *ContributionAggregator
	Now           func() time.Time
}

func NewTeamService(store database.Store, contributions *ContributionAggregator) *TeamService {
	return &TeamService{store: store, contributions: contributions, Now: time.Now}
}

// ================== TEAM OPERATIONS ==================

// CreateTeam creates a team with the creator as owner
func (s *TeamService) CreateTeam(ctx context.Context, creatorID, name, description string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: team name is required", ErrInvalidInput)
	}

	now := s.Now()
	team := &models.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatorID:   creatorID,
		CreatedAt:   now,
	}

	err := s.store.Transaction(ctx, func(tx database.Store) error {
		var creator models.User
		if err := tx.Get(ctx, creatorID, &creator); err != nil {
			return notFound(err, "user", creatorID)
		}
		if err := tx.Create(ctx, team); err != nil {
			return err
		}
		return tx.Create(ctx, &models.TeamMember{
			ID:       models.TeamMemberID(team.ID, creatorID),
			TeamID:   team.ID,
			UserID:   creatorID,
			Role:     models.TeamRoleOwner,
			JoinedAt: now,
			IsActive: true,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("👥 Team %s (%s) created by %s", team.ID, team.Name, creatorID)
	return team, nil
}

// GetTeam returns an active team
func (s *TeamService) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	if err := s.store.Get(ctx, teamID, &team); err != nil {
		return nil, notFound(err, "team", teamID)
	}
	if !team.IsActive {
		return nil, &NotFoundError{Kind: "team", ID: teamID}
	}
	return &team, nil
}

// JoinTeam adds a user to a team, reactivating a previous membership
func (s *TeamService) JoinTeam(ctx context.Context, userID, teamID string) (*models.TeamMember, error) {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	var user models.User
	if err := s.store.Get(ctx, userID, &user); err != nil {
		return nil, notFound(err, "user", userID)
	}

	id := models.TeamMemberID(teamID, userID)
	var member models.TeamMember
	err := s.store.Get(ctx, id, &member)
	switch {
	case err == nil && member.IsActive:
		return nil, fmt.Errorf("%w: already a member of this team", ErrInvalidInput)
	case err == nil:
		member.IsActive = true
		member.Role = models.TeamRoleMember
		member.JoinedAt = s.Now()
		if err := s.store.Update(ctx, &member, "is_active", "role", "joined_at"); err != nil {
			return nil, err
		}
		return &member, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	member = models.TeamMember{
		ID:       id,
		TeamID:   teamID,
		UserID:   userID,
		Role:     models.TeamRoleMember,
		JoinedAt: s.Now(),
		IsActive: true,
	}
	if err := s.store.Create(ctx, &member); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, fmt.Errorf("%w: already a member of this team", ErrInvalidInput)
		}
		return nil, err
	}
	return &member, nil
}

// LeaveTeam deactivates a membership and the member's challenge entries
func (s *TeamService) LeaveTeam(ctx context.Context, userID, teamID string) error {
	member, err := s.activeMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if member.Role == models.TeamRoleOwner {
		return fmt.Errorf("%w: team owner cannot leave the team", ErrInvalidInput)
	}

	member.IsActive = false
	if err := s.store.Update(ctx, member, "is_active"); err != nil {
		return err
	}

	var parts []models.TeamChallengeParticipation
	if err := s.store.Query(ctx, &parts, database.Query{
		Filters: []database.Filter{
			database.Eq("team_id", teamID),
			database.Eq("user_id", userID),
			database.Eq("is_active", true),
		},
	}); err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := s.deactivate(ctx, &p); err != nil {
			log.Printf("⚠️ Failed to leave challenge %s for %s: %v", p.ChallengeID, userID, err)
		}
	}
	return nil
}

// GetTeamMembers returns all active members of a team
func (s *TeamService) GetTeamMembers(ctx context.Context, teamID string) ([]models.TeamMember, error) {
	return activeMembers(ctx, s.store, teamID)
}

// IsTeamLeader reports whether the user is an active owner or admin
func (s *TeamService) IsTeamLeader(ctx context.Context, userID, teamID string) (bool, error) {
	member, err := s.activeMember(ctx, teamID, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.Role.IsLeader(), nil
}

func (s *TeamService) requireLeader(ctx context.Context, userID, teamID string) error {
	ok, err := s.IsTeamLeader(ctx, userID, teamID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: only team owner or admin can manage challenges", ErrNotAuthorized)
	}
	return nil
}

func (s *TeamService) activeMember(ctx context.Context, teamID, userID string) (*models.TeamMember, error) {
	id := models.TeamMemberID(teamID, userID)
	var member models.TeamMember
	if err := s.store.Get(ctx, id, &member); err != nil {
		return nil, notFound(err, "team member", id)
	}
	if !member.IsActive {
		return nil, &NotFoundError{Kind: "team member", ID: id}
	}
	return &member, nil
}

func activeMembers(ctx context.Context, store database.Store, teamID string) ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := store.Query(ctx, &members, database.Query{
		Filters: []database.Filter{
			database.Eq("team_id", teamID),
			database.Eq("is_active", true),
		},
		OrderBy: "joined_at ASC",
	})
	return members, err
}

// ================== CHALLENGE OPERATIONS ==================

type ChallengeInput struct {
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Type         models.ChallengeType `json:"type"`
	TargetValue  float64              `json:"target_value"`
	EndsAt       *time.Time           `json:"ends_at"`
	Participants []string             `json:"participants"` // empty means every active member
}

func (in ChallengeInput) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: challenge name is required", ErrInvalidInput)
	case !in.Type.Valid():
		return fmt.Errorf("%w: unknown challenge type %q", ErrInvalidInput, in.Type)
	case in.TargetValue <= 0:
		return fmt.Errorf("%w: target value must be positive", ErrInvalidInput)
	case in.EndsAt != nil && !in.EndsAt.After(now):
		return fmt.Errorf("%w: ends_at must be in the future", ErrInvalidInput)
	}
	return nil
}

// CreateChallenge creates a challenge and one ledger entry per initial
// participant in a single transaction (leader only)
func (s *TeamService) CreateChallenge(ctx context.Context, leaderID, teamID string, in ChallengeInput) (*models.TeamChallenge, error) {
	now := s.Now()
	if err := in.validate(now); err != nil {
		return nil, err
	}
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, leaderID, teamID); err != nil {
		return nil, err
	}

	challenge := &models.TeamChallenge{
		ID:          uuid.NewString(),
		TeamID:      teamID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Type:        in.Type,
		TargetValue: in.TargetValue,
		Status:      models.ChallengeStatusActive,
		CreatedBy:   leaderID,
		CreatedAt:   now,
		EndsAt:      in.EndsAt,
	}

	err := s.store.Transaction(ctx, func(tx database.Store) error {
		members, err := activeMembers(ctx, tx, teamID)
		if err != nil {
			return err
		}
		participants, err := pickParticipants(members, in.Participants)
		if err != nil {
			return err
		}

		challenge.Participants = participants
		challenge.Statistics.ActiveParticipants = len(participants)
		challenge.Statistics.TopContributors = []models.Contributor{}
		if err := tx.Create(ctx, challenge); err != nil {
			return err
		}

		for _, userID := range participants {
			if err := tx.Create(ctx, &models.TeamChallengeParticipation{
				ID:          models.ParticipationID(challenge.ID, userID),
				ChallengeID: challenge.ID,
				UserID:      userID,
				TeamID:      teamID,
				JoinedAt:    now,
				LastUpdated: now,
				IsActive:    true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🎯 Challenge %s created for team %s with %d participants", challenge.ID, teamID, len(challenge.Participants))
	return challenge, nil
}

// pickParticipants returns the requested participants, or every member when
// none are requested. Each must be an active member.
func pickParticipants(members []models.TeamMember, requested []string) ([]string, error) {
	active := make(map[string]bool, len(members))
	for _, m := range members {
		active[m.UserID] = true
	}

	if len(requested) == 0 {
		out := make([]string, 0, len(members))
		for _, m := range members {
			out = append(out, m.UserID)
		}
		sort.Strings(out)
		return out, nil
	}

	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	for _, userID := range requested {
		if !active[userID] {
			return nil, fmt.Errorf("%w: %s is not an active team member", ErrInvalidInput, userID)
		}
		if !seen[userID] {
			seen[userID] = true
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetChallenge returns one challenge
func (s *TeamService) GetChallenge(ctx context.Context, challengeID string) (*models.TeamChallenge, error) {
	var ch models.TeamChallenge
	if err := s.store.Get(ctx, challengeID, &ch); err != nil {
		return nil, notFound(err, "challenge", challengeID)
	}
	return &ch, nil
}

// ListChallenges returns a team's challenges, newest first
func (s *TeamService) ListChallenges(ctx context.Context, teamID string) ([]models.TeamChallenge, error) {
	var challenges []models.TeamChallenge
	err := s.store.Query(ctx, &challenges, database.Query{
		Filters: []database.Filter{database.Eq("team_id", teamID)},
		OrderBy: "created_at DESC",
	})
	return challenges, err
}

// ListParticipations returns a challenge's ledger
func (s *TeamService) ListParticipations(ctx context.Context, challengeID string) ([]models.TeamChallengeParticipation, error) {
	var parts []models.TeamChallengeParticipation
	err := s.store.Query(ctx, &parts, database.Query{
		Filters: []database.Filter{database.Eq("challenge_id", challengeID)},
		OrderBy: "contribution DESC, joined_at ASC",
	})
	return parts, err
}

// JoinChallenge creates or reactivates the member's ledger entry. A
// reactivated entry keeps its earlier contribution.
func (s *TeamService) JoinChallenge(ctx context.Context, userID, challengeID string) (*RecalcResult, error) {
	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch.Status != models.ChallengeStatusActive {
		return nil, fmt.Errorf("%w: challenge %s is %s", ErrInvalidTransition, challengeID, ch.Status)
	}
	if _, err := s.activeMember(ctx, ch.TeamID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: only team members can join this challenge", ErrNotAuthorized)
		}
		return nil, err
	}

	now := s.Now()
	id := models.ParticipationID(challengeID, userID)
	var p models.TeamChallengeParticipation
	err = s.store.Get(ctx, id, &p)
	switch {
	case err == nil && p.IsActive:
		return nil, fmt.Errorf("%w: already participating in this challenge", ErrInvalidInput)
	case err == nil:
		p.IsActive = true
		p.LastUpdated = now
		if err := s.store.Update(ctx, &p, "is_active", "last_updated"); err != nil {
			return nil, err
		}
	case errors.Is(err, database.ErrNotFound):
		p = models.TeamChallengeParticipation{
			ID:          id,
			ChallengeID: challengeID,
			UserID:      userID,
			TeamID:      ch.TeamID,
			JoinedAt:    now,
			LastUpdated: now,
			IsActive:    true,
		}
		if err := s.store.Create(ctx, &p); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return nil, fmt.Errorf("%w: already participating in this challenge", ErrInvalidInput)
			}
			return nil, err
		}
	default:
		return nil, err
	}

	return s.contributions.Recalculate(ctx, challengeID)
}

// LeaveChallenge removes the member's entry from aggregation without
// deleting it
func (s *TeamService) LeaveChallenge(ctx context.Context, userID, challengeID string) (*RecalcResult, error) {
	id := models.ParticipationID(challengeID, userID)
	var p models.TeamChallengeParticipation
	if err := s.store.Get(ctx, id, &p); err != nil {
		return nil, notFound(err, "participation", id)
	}
	if !p.IsActive {
		return nil, fmt.Errorf("%w: not participating in this challenge", ErrInvalidInput)
	}
	return s.deactivate(ctx, &p)
}

func (s *TeamService) deactivate(ctx context.Context, p *models.TeamChallengeParticipation) (*RecalcResult, error) {
	p.IsActive = false
	p.LastUpdated = s.Now()
	applied, err := s.store.UpdateIf(ctx, p, []database.Filter{database.Eq("is_active", true)}, "is_active", "last_updated")
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: not participating in this challenge", ErrInvalidInput)
	}
	return s.contributions.Recalculate(ctx, p.ChallengeID)
}

// Contribute reports progress from a participant: a delta for xp and quests
// challenges, an absolute total for locations and time.
func (s *TeamService) Contribute(ctx context.Context, userID, challengeID string, amount float64) (*RecalcResult, error) {
	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch.Status != models.ChallengeStatusActive {
		return nil, fmt.Errorf("%w: challenge %s is %s", ErrInvalidTransition, challengeID, ch.Status)
	}
	if ch.Type.Incremental() {
		if amount <= 0 {
			return nil, fmt.Errorf("%w: contribution delta must be positive", ErrInvalidInput)
		}
		return s.contributions.RecordContribution(ctx, challengeID, userID, amount)
	}
	return s.contributions.SetContribution(ctx, challengeID, userID, amount)
}

// Recalculate re-derives a challenge's aggregate for a leader or participant
func (s *TeamService) Recalculate(ctx context.Context, userID, challengeID string) (*RecalcResult, error) {
	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeMember(ctx, ch.TeamID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: only team members can recalculate this challenge", ErrNotAuthorized)
		}
		return nil, err
	}
	return s.contributions.Recalculate(ctx, challengeID)
}

// PauseChallenge moves an active challenge to paused (leader only)
func (s *TeamService) PauseChallenge(ctx context.Context, leaderID, challengeID string) (*models.TeamChallenge, error) {
	return s.setStatus(ctx, leaderID, challengeID, models.ChallengeStatusActive, models.ChallengeStatusPaused)
}

// ResumeChallenge moves a paused challenge back to active and recalculates,
// so entries recorded while paused can complete it (leader only)
func (s *TeamService) ResumeChallenge(ctx context.Context, leaderID, challengeID string) (*models.TeamChallenge, error) {
	if _, err := s.setStatus(ctx, leaderID, challengeID, models.ChallengeStatusPaused, models.ChallengeStatusActive); err != nil {
		return nil, err
	}
	res, err := s.contributions.Recalculate(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	return &res.Challenge, nil
}

func (s *TeamService) setStatus(ctx context.Context, leaderID, challengeID string, from, to models.ChallengeStatus) (*models.TeamChallenge, error) {
	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, leaderID, ch.TeamID); err != nil {
		return nil, err
	}

	current := ch.Status
	ch.Status = to
	ch.UpdatedAt = s.Now()
	applied, err := s.store.UpdateIf(ctx, ch, []database.Filter{database.Eq("status", from)}, "status", "updated_at")
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: challenge %s is %s, not %s", ErrInvalidTransition, challengeID, current, from)
	}
	return ch, nil
}

// DeleteChallenge removes a challenge and every ledger entry for it (leader only)
func (s *TeamService) DeleteChallenge(ctx context.Context, leaderID, challengeID string) error {
	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if err := s.requireLeader(ctx, leaderID, ch.TeamID); err != nil {
		return err
	}

	var removed int64
	err = s.store.Transaction(ctx, func(tx database.Store) error {
		n, err := tx.DeleteWhere(ctx, &models.TeamChallengeParticipation{}, database.Eq("challenge_id", challengeID))
		if err != nil {
			return err
		}
		removed = n
		return tx.Delete(ctx, &models.TeamChallenge{}, challengeID)
	})
	if err != nil {
		return notFound(err, "challenge", challengeID)
	}

	log.Printf("🗑️ Challenge %s deleted with %d participation records", challengeID, removed)
	return nil
}
