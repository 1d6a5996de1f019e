package leaderboard

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
)

const (
	northRegion = "north"
	southRegion = "south"
)

var (
	roboticsClub = directory.Club{ID: "club-robotics", Name: "Robotics", RegionID: northRegion, AmbassadorID: "amy"}
	chessClub    = directory.Club{ID: "club-chess", Name: "Chess", RegionID: southRegion, AmbassadorID: "ben"}
)

func sampleMembers() []Member {
	return []Member{
		{UserID: "amy", Name: "Amy", Role: directory.RoleAmbassador, RegionID: northRegion, RegionName: "North", Clubs: []directory.Club{roboticsClub}, SecondaryPoints: 0},
		{UserID: "ben", Name: "Ben", Role: directory.RoleAmbassador, RegionID: southRegion, RegionName: "South", Clubs: []directory.Club{chessClub}, SecondaryPoints: 40},
		{UserID: "cal", Name: "Cal", Role: directory.RoleMember, RegionID: northRegion, RegionName: "North", Clubs: []directory.Club{roboticsClub, chessClub}, SecondaryPoints: 5},
		{UserID: "dee", Name: "Dee", Role: directory.RoleMember, RegionID: northRegion, RegionName: "North", Clubs: []directory.Club{roboticsClub}},
		{UserID: "eve", Name: "Eve", Role: directory.RoleMember, RegionID: southRegion, RegionName: "South"},
	}
}

func sampleTotals() map[string]int64 {
	return map[string]int64{"amy": 50, "ben": 20, "cal": 50, "dee": 10}
}

func TestRankOrdersByCombinedTotal(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name             string
		scope            Scope
		includeSecondary bool
		wantOrder        []string
	}{
		{name: "ledger only, ties keep directory order", wantOrder: []string{"amy", "cal", "ben", "dee", "eve"}},
		{name: "with secondary score", includeSecondary: true, wantOrder: []string{"ben", "cal", "amy", "dee", "eve"}},
		{name: "region scope", scope: Scope{RegionID: southRegion}, includeSecondary: true, wantOrder: []string{"ben", "eve"}},
		{name: "club scope", scope: Scope{ClubID: chessClub.ID}, wantOrder: []string{"cal", "ben"}},
		{name: "region and club scope", scope: Scope{RegionID: northRegion, ClubID: chessClub.ID}, wantOrder: []string{"cal"}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			entries := Rank(sampleMembers(), sampleTotals(), testCase.scope, testCase.includeSecondary)
			if len(entries) != len(testCase.wantOrder) {
				test.Fatalf("expected %d entries, got %d", len(testCase.wantOrder), len(entries))
			}
			for index, entry := range entries {
				if entry.UserID != testCase.wantOrder[index] {
					test.Fatalf("position %d: expected %s, got %s", index, testCase.wantOrder[index], entry.UserID)
				}
				if entry.Rank != index+1 {
					test.Fatalf("expected rank %d, got %d", index+1, entry.Rank)
				}
			}
		})
	}
}

func TestRankIsMonotonicWithCombinedScore(test *testing.T) {
	test.Parallel()
	entries := Rank(sampleMembers(), sampleTotals(), Scope{}, true)
	for _, left := range entries {
		for _, right := range entries {
			if left.TotalPoints > right.TotalPoints && left.Rank >= right.Rank {
				test.Fatalf("%s (%d) ranked %d, %s (%d) ranked %d", left.UserID, left.TotalPoints, left.Rank, right.UserID, right.TotalPoints, right.Rank)
			}
		}
	}
}

func TestRankLabels(test *testing.T) {
	test.Parallel()
	entries := Rank(sampleMembers(), sampleTotals(), Scope{}, true)
	var cal RankedEntry
	for _, entry := range entries {
		if entry.UserID == "cal" {
			cal = entry
		}
	}
	if cal.ClubLabel != "Robotics, Chess" || cal.RegionLabel != "North" {
		test.Fatalf("unexpected labels: %+v", cal)
	}
	if cal.LedgerPoints != 50 || cal.SecondaryPoints != 5 || cal.TotalPoints != 55 {
		test.Fatalf("unexpected points: %+v", cal)
	}
	scoped := Rank(sampleMembers(), sampleTotals(), Scope{ClubID: chessClub.ID}, false)
	if scoped[0].ClubLabel != "Chess" || scoped[0].SecondaryPoints != 0 {
		test.Fatalf("unexpected scoped entry: %+v", scoped[0])
	}
}

type stubDirectory struct {
	members        []Member
	rosters        []ClubRoster
	lastPopulation Population
	err            error
}

func (directory *stubDirectory) ListMembers(_ context.Context, population Population) ([]Member, error) {
	directory.lastPopulation = population
	return directory.members, directory.err
}

func (directory *stubDirectory) ListClubRosters(_ context.Context, _ string) ([]ClubRoster, error) {
	return directory.rosters, directory.err
}

type stubLedger struct {
	totals map[string]int64
	calls  int
	err    error
}

func (ledger *stubLedger) SumByUsers(_ context.Context, userIDs []string) (map[string]int64, error) {
	ledger.calls++
	if ledger.err != nil {
		return nil, ledger.err
	}
	totals := make(map[string]int64, len(userIDs))
	for _, userID := range userIDs {
		totals[userID] = ledger.totals[userID]
	}
	return totals, nil
}

func mustNewService(test *testing.T, directory Directory, ledger Ledger) *Service {
	test.Helper()
	service, err := NewService(directory, ledger)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func TestComputeLeaderboardEmptyPopulation(test *testing.T) {
	test.Parallel()
	ledger := &stubLedger{}
	service := mustNewService(test, &stubDirectory{}, ledger)
	entries, err := service.ComputeLeaderboard(context.Background(), Population{Roles: []directory.Role{directory.RoleAmbassador}}, Scope{}, true)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		test.Fatalf("expected empty slice, got %#v", entries)
	}
	if ledger.calls != 0 {
		test.Fatalf("expected no ledger read for an empty population")
	}
}

func TestComputeLeaderboardUsesLedgerTotals(test *testing.T) {
	test.Parallel()
	directoryStub := &stubDirectory{members: sampleMembers()}
	ledger := &stubLedger{totals: sampleTotals()}
	service := mustNewService(test, directoryStub, ledger)
	entries, err := service.ComputeLeaderboard(context.Background(), Population{Roles: []directory.Role{" member "}}, Scope{RegionID: " north "}, false)
	if err != nil {
		test.Fatalf("compute: %v", err)
	}
	if len(directoryStub.lastPopulation.Roles) != 1 || directoryStub.lastPopulation.Roles[0] != directory.RoleMember {
		test.Fatalf("expected normalized roles, got %+v", directoryStub.lastPopulation)
	}
	if len(entries) != 3 || entries[0].UserID != "amy" {
		test.Fatalf("unexpected entries: %+v", entries)
	}
	if ledger.calls != 1 {
		test.Fatalf("expected one bulk ledger read, got %d", ledger.calls)
	}
}

func TestComputeLeaderboardErrors(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, &stubDirectory{members: sampleMembers()}, &stubLedger{err: errors.New("ledger down")})
	if _, err := service.ComputeLeaderboard(context.Background(), Population{Roles: []directory.Role{"guest"}}, Scope{}, false); !errors.Is(err, ErrValidation) {
		test.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := service.ComputeLeaderboard(context.Background(), Population{}, Scope{}, false); err == nil {
		test.Fatalf("expected ledger error")
	}
	if _, err := NewService(nil, &stubLedger{}); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}

func TestComputeClubLeaderboard(test *testing.T) {
	test.Parallel()
	directoryStub := &stubDirectory{rosters: []ClubRoster{
		{Club: chessClub, RegionName: "South", MemberIDs: []string{"ben", "cal"}},
		{Club: roboticsClub, RegionName: "North", MemberIDs: []string{"amy", "cal", "dee"}},
		{Club: directory.Club{ID: "club-empty", Name: "Empty"}},
	}}
	service := mustNewService(test, directoryStub, &stubLedger{totals: sampleTotals()})
	standings, err := service.ComputeClubLeaderboard(context.Background(), "")
	if err != nil {
		test.Fatalf("compute: %v", err)
	}
	if len(standings) != 3 {
		test.Fatalf("expected three clubs, got %d", len(standings))
	}
	if standings[0].ClubID != roboticsClub.ID || standings[0].TotalPoints != 110 || standings[0].MemberCount != 3 || standings[0].Rank != 1 {
		test.Fatalf("unexpected leader: %+v", standings[0])
	}
	if standings[1].ClubID != chessClub.ID || standings[1].TotalPoints != 70 {
		test.Fatalf("unexpected runner-up: %+v", standings[1])
	}
	if standings[2].TotalPoints != 0 || standings[2].Rank != 3 {
		test.Fatalf("unexpected last: %+v", standings[2])
	}
}
