// Package leaderboard derives ranked views from ledger totals and the user
// directory. Nothing here is persisted: every view is computed per request.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
)

var (
	ErrValidation           = points.ErrValidation
	ErrInvalidPopulation    = fmt.Errorf("%w: invalid population", ErrValidation)
	ErrInvalidServiceConfig = errors.New("invalid leaderboard service config")
)

// Population selects the candidate users: everyone holding one of Roles, or
// the approved members of ClubID. Empty fields select everybody.
type Population struct {
	Roles  []directory.Role
	ClubID string
}

// Scope narrows a population by region and club.
type Scope struct {
	RegionID string
	ClubID   string
}

// Member is a directory row with its denormalized labels.
type Member struct {
	UserID          string
	Name            string
	AvatarURL       string
	Role            directory.Role
	RegionID        string
	RegionName      string
	Clubs           []directory.Club
	SecondaryPoints int64
}

func (member Member) inClub(clubID string) bool {
	for _, club := range member.Clubs {
		if club.ID == clubID {
			return true
		}
	}
	return false
}

// RankedEntry is one row of a leaderboard, ready to render.
type RankedEntry struct {
	Rank            int
	UserID          string
	Name            string
	AvatarURL       string
	Role            directory.Role
	RegionID        string
	RegionLabel     string
	ClubLabel       string
	LedgerPoints    int64
	SecondaryPoints int64
	TotalPoints     int64
}

// ClubRoster lists the approved members of one club.
type ClubRoster struct {
	Club       directory.Club
	RegionName string
	MemberIDs  []string
}

// ClubStanding is one row of the club leaderboard.
type ClubStanding struct {
	Rank        int
	ClubID      string
	ClubName    string
	RegionID    string
	RegionLabel string
	MemberCount int
	TotalPoints int64
}

// Directory resolves populations. Rows come back ordered by name, then id;
// that order breaks ties.
type Directory interface {
	ListMembers(ctx context.Context, population Population) ([]Member, error)
	ListClubRosters(ctx context.Context, regionID string) ([]ClubRoster, error)
}

// Ledger is the read side of the points ledger the aggregator needs.
type Ledger interface {
	SumByUsers(ctx context.Context, userIDs []string) (map[string]int64, error)
}

// Rank filters members by scope, combines ledger and secondary points and
// assigns ranks 1..N by descending total. Equal totals keep the input order.
func Rank(members []Member, totals map[string]int64, scope Scope, includeSecondary bool) []RankedEntry {
	entries := make([]RankedEntry, 0, len(members))
	for _, member := range members {
		if !scope.admits(member) {
			continue
		}
		ledgerPoints := totals[member.UserID]
		entry := RankedEntry{
			UserID:       member.UserID,
			Name:         member.Name,
			AvatarURL:    member.AvatarURL,
			Role:         member.Role,
			RegionID:     member.RegionID,
			RegionLabel:  member.RegionName,
			ClubLabel:    clubLabel(member, scope),
			LedgerPoints: ledgerPoints,
			TotalPoints:  ledgerPoints,
		}
		if includeSecondary {
			entry.SecondaryPoints = member.SecondaryPoints
			entry.TotalPoints += member.SecondaryPoints
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(left, right int) bool {
		return entries[left].TotalPoints > entries[right].TotalPoints
	})
	for index := range entries {
		entries[index].Rank = index + 1
	}
	return entries
}

func (scope Scope) admits(member Member) bool {
	if scope.RegionID != "" && member.RegionID != scope.RegionID {
		return false
	}
	if scope.ClubID != "" && !member.inClub(scope.ClubID) {
		return false
	}
	return true
}

func clubLabel(member Member, scope Scope) string {
	names := make([]string, 0, len(member.Clubs))
	for _, club := range member.Clubs {
		if scope.ClubID != "" && club.ID == scope.ClubID {
			return club.Name
		}
		names = append(names, club.Name)
	}
	return strings.Join(names, ", ")
}

// Service computes leaderboards against a directory and the ledger.
type Service struct {
	directory Directory
	ledger    Ledger
}

// NewService wires a Service.
func NewService(directory Directory, ledger Ledger) (*Service, error) {
	if directory == nil {
		return nil, fmt.Errorf("%w: directory dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	return &Service{directory: directory, ledger: ledger}, nil
}

// ComputeLeaderboard ranks a population. An empty population yields an empty slice.
func (service *Service) ComputeLeaderboard(ctx context.Context, population Population, scope Scope, includeSecondary bool) ([]RankedEntry, error) {
	normalized, err := normalizePopulation(population)
	if err != nil {
		return nil, err
	}
	members, err := service.directory.ListMembers(ctx, normalized)
	if err != nil {
		return nil, err
	}
	scope = Scope{RegionID: strings.TrimSpace(scope.RegionID), ClubID: strings.TrimSpace(scope.ClubID)}
	userIDs := make([]string, 0, len(members))
	for _, member := range members {
		if scope.admits(member) {
			userIDs = append(userIDs, member.UserID)
		}
	}
	if len(userIDs) == 0 {
		return []RankedEntry{}, nil
	}
	totals, err := service.ledger.SumByUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	return Rank(members, totals, scope, includeSecondary), nil
}

// ComputeClubLeaderboard ranks clubs by the summed ledger points of their
// approved members, optionally within one region.
func (service *Service) ComputeClubLeaderboard(ctx context.Context, regionID string) ([]ClubStanding, error) {
	rosters, err := service.directory.ListClubRosters(ctx, strings.TrimSpace(regionID))
	if err != nil {
		return nil, err
	}
	standings := make([]ClubStanding, 0, len(rosters))
	if len(rosters) == 0 {
		return standings, nil
	}
	seen := make(map[string]struct{})
	var userIDs []string
	for _, roster := range rosters {
		for _, userID := range roster.MemberIDs {
			if _, ok := seen[userID]; ok {
				continue
			}
			seen[userID] = struct{}{}
			userIDs = append(userIDs, userID)
		}
	}
	totals := map[string]int64{}
	if len(userIDs) > 0 {
		totals, err = service.ledger.SumByUsers(ctx, userIDs)
		if err != nil {
			return nil, err
		}
	}
	for _, roster := range rosters {
		standing := ClubStanding{
			ClubID:      roster.Club.ID,
			ClubName:    roster.Club.Name,
			RegionID:    roster.Club.RegionID,
			RegionLabel: roster.RegionName,
			MemberCount: len(roster.MemberIDs),
		}
		for _, userID := range roster.MemberIDs {
			standing.TotalPoints += totals[userID]
		}
		standings = append(standings, standing)
	}
	sort.SliceStable(standings, func(left, right int) bool {
		return standings[left].TotalPoints > standings[right].TotalPoints
	})
	for index := range standings {
		standings[index].Rank = index + 1
	}
	return standings, nil
}

func normalizePopulation(population Population) (Population, error) {
	normalized := Population{ClubID: strings.TrimSpace(population.ClubID)}
	for _, role := range population.Roles {
		parsed, err := directory.ParseRole(role.String())
		if err != nil {
			return Population{}, fmt.Errorf("%w: %v", ErrInvalidPopulation, err)
		}
		normalized.Roles = append(normalized.Roles, parsed)
	}
	return normalized, nil
}
