package directory

import (
	"context"
	"testing"

	"github.com/yungbote/teamchat-backend/internal/data/repos"
	"github.com/yungbote/teamchat-backend/internal/data/repos/testutil"
)

func TestFindAccountUser(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	dir := New(log, repos.NewUserRepo(db, log), repos.NewTeamRepo(db, log))

	acct := testutil.SeedAccount(t, ctx, db, "acme")
	other := testutil.SeedAccount(t, ctx, db, "globex")
	member := testutil.SeedUser(t, ctx, db, acct.ID, "ana")
	outsider := testutil.SeedUser(t, ctx, db, other.ID, "otto")
	granted := testutil.SeedSuperUser(t, ctx, db, "root", acct.ID)
	ungranted := testutil.SeedSuperUser(t, ctx, db, "ops", other.ID)

	cases := []struct {
		name   string
		userID int64
		found  bool
	}{
		{"member", member.ID, true},
		{"other account member", outsider.ID, false},
		{"super user with grant", granted.ID, true},
		{"super user without grant", ungranted.ID, false},
		{"unknown", 99999, false},
	}
	for _, tc := range cases {
		got, err := dir.FindAccountUser(ctx, acct.ID, tc.userID)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if (got != nil) != tc.found {
			t.Fatalf("%s: want found=%v got=%v", tc.name, tc.found, got)
		}
		if got != nil && got.AccountID != acct.ID {
			t.Fatalf("%s: identity account: want=%d got=%d", tc.name, acct.ID, got.AccountID)
		}
	}

	root, _ := dir.FindAccountUser(ctx, acct.ID, granted.ID)
	if !root.IsSuperUser() {
		t.Fatalf("granted user should carry the super user capability")
	}
}

func TestTeamsAndPeers(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	dir := New(log, repos.NewUserRepo(db, log), repos.NewTeamRepo(db, log))

	acct := testutil.SeedAccount(t, ctx, db, "acme")
	a := testutil.SeedUser(t, ctx, db, acct.ID, "ana")
	b := testutil.SeedUser(t, ctx, db, acct.ID, "bo")
	team := testutil.SeedTeam(t, ctx, db, acct.ID, "support", a.ID, b.ID)
	testutil.SeedSuperUser(t, ctx, db, "root", acct.ID)

	found, err := dir.FindTeam(ctx, team.ID)
	if err != nil || found == nil || !found.BelongsTo(acct.ID) {
		t.Fatalf("FindTeam: got=%v err=%v", found, err)
	}
	members, err := dir.TeamMembers(ctx, team.ID)
	if err != nil || len(members) != 2 {
		t.Fatalf("TeamMembers: want=2 got=%d err=%v", len(members), err)
	}
	peers, err := dir.ListAccountUsers(ctx, acct.ID)
	if err != nil || len(peers) != 2 {
		t.Fatalf("ListAccountUsers: want=2 got=%d err=%v", len(peers), err)
	}
	if peers[0].AvailabilityStatus != "online" {
		t.Fatalf("availability: want=online got=%q", peers[0].AvailabilityStatus)
	}
	supers, err := dir.ListSuperUsers(ctx, acct.ID)
	if err != nil || len(supers) != 1 {
		t.Fatalf("ListSuperUsers: want=1 got=%d err=%v", len(supers), err)
	}
	profiles, err := dir.Profiles(ctx, acct.ID, []int64{a.ID, b.ID, 4242})
	if err != nil || len(profiles) != 2 || profiles[a.ID].Name() != "ana" {
		t.Fatalf("Profiles: got=%v err=%v", profiles, err)
	}
}
