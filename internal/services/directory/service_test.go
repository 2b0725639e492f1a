package directory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/services/directory"
	"courier/internal/storage/memory"
)

type fixture struct {
	convs  *memory.Conversations
	roster *memory.Roster
	keys   *memory.Keys
	svc    *directory.Service
}

func newFixture() *fixture {
	f := &fixture{
		convs: memory.NewConversations(),
		roster: memory.NewRoster(map[domain.TeamID][]domain.UserID{
			"core": {"alice", "bob"},
		}, []domain.UserID{"root"}),
		keys: memory.NewKeys(),
	}
	f.svc = directory.New(f.convs, f.roster, f.keys, zap.NewNop())
	return f
}

func member(id domain.UserID) domain.Principal {
	return domain.Principal{UserID: id, Role: types.RoleMember}
}

func TestEnsureAccess_Direct(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c, created, err := f.svc.CreateDirect(ctx, member("alice"), "bob", "")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, types.Retention7Days, c.RetentionPolicy)

	_, err = f.svc.EnsureAccess(ctx, member("bob"), c.ID)
	require.NoError(t, err)

	_, err = f.svc.EnsureAccess(ctx, member("carol"), c.ID)
	assert.True(t, types.IsKind(err, types.KindAccessDenied))

	// Admin role does not open direct conversations.
	_, err = f.svc.EnsureAccess(ctx, domain.Principal{UserID: "root", Role: types.RoleAdmin}, c.ID)
	assert.True(t, types.IsKind(err, types.KindAccessDenied))
}

func TestEnsureAccess_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.EnsureAccess(context.Background(), member("alice"), "missing")
	assert.True(t, types.IsKind(err, types.KindNotFound))
}

func TestEnsureAccess_TeamMembershipIsLive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c, err := f.svc.CreateTeam(ctx, member("alice"), "core", types.Retention30Days)
	require.NoError(t, err)
	before, _, _ := f.convs.GetConversation(ctx, c.ID)

	_, err = f.svc.EnsureAccess(ctx, member("bob"), c.ID)
	require.NoError(t, err)

	f.roster.RemoveMember("core", "bob")
	_, err = f.svc.EnsureAccess(ctx, member("bob"), c.ID)
	assert.True(t, types.IsKind(err, types.KindAccessDenied))

	f.roster.AddMember("core", "carol")
	_, err = f.svc.EnsureAccess(ctx, member("carol"), c.ID)
	assert.NoError(t, err)

	after, _, _ := f.convs.GetConversation(ctx, c.ID)
	assert.Equal(t, before, after, "membership changes must not mutate the record")
}

func TestEnsureAccess_OnlyRosterAdminsAdmittedToTeams(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, err := f.svc.CreateTeam(ctx, member("alice"), "core", "")
	require.NoError(t, err)

	// Global admin set from the roster.
	_, err = f.svc.EnsureAccess(ctx, member("root"), c.ID)
	assert.NoError(t, err)

	// A token role outside the roster admin set is not a member.
	auditor := domain.Principal{UserID: "auditor", Role: types.RoleAdmin}
	_, err = f.svc.EnsureAccess(ctx, auditor, c.ID)
	assert.True(t, types.IsKind(err, types.KindAccessDenied))
	_, err = f.svc.CreateTeam(ctx, auditor, "core", "")
	assert.True(t, types.IsKind(err, types.KindAccessDenied))

	f.roster.SetAdmin("auditor", true)
	_, err = f.svc.EnsureAccess(ctx, auditor, c.ID)
	assert.NoError(t, err)
	members, err := f.svc.ResolveAllowedParticipants(ctx, c)
	require.NoError(t, err)
	assert.Contains(t, members, domain.UserID("auditor"))
}

func TestResolveAllowedParticipants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	team, err := f.svc.CreateTeam(ctx, member("alice"), "core", "")
	require.NoError(t, err)
	got, err := f.svc.ResolveAllowedParticipants(ctx, team)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"alice", "bob", "root"}, got)

	f.roster.SetAdmin("root", false)
	got, err = f.svc.ResolveAllowedParticipants(ctx, team)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"alice", "bob"}, got)

	direct, _, err := f.svc.CreateDirect(ctx, member("alice"), "bob", "")
	require.NoError(t, err)
	got, err = f.svc.ResolveAllowedParticipants(ctx, direct)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.UserID{"alice", "bob"}, got)
}

func TestCreateDirect_CanonicalPerPair(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, created, err := f.svc.CreateDirect(ctx, member("alice"), "bob", "")
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := f.svc.CreateDirect(ctx, member("bob"), "alice", types.Retention30Days)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}

func TestCreateDirect_ConcurrentCallsConverge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ids := make([]domain.ConversationID, 16)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := f.svc.CreateDirect(ctx, member("alice"), "bob", "")
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreateDirect_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, _, err := f.svc.CreateDirect(ctx, member("alice"), "alice", "")
	assert.True(t, types.IsKind(err, types.KindValidation))

	_, _, err = f.svc.CreateDirect(ctx, member("alice"), "", "")
	assert.True(t, types.IsKind(err, types.KindValidation))

	_, _, err = f.svc.CreateDirect(ctx, member("alice"), "bob", "90d")
	assert.True(t, types.IsKind(err, types.KindValidation))
}

func TestCreateTeam_RequiresMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateTeam(ctx, member("mallory"), "core", "")
	assert.True(t, types.IsKind(err, types.KindAccessDenied))

	_, err = f.svc.CreateTeam(ctx, member("alice"), "ghost", "")
	assert.True(t, types.IsKind(err, types.KindNotFound))

	_, err = f.svc.CreateTeam(ctx, member("root"), "core", "")
	assert.NoError(t, err)
}

func TestUpdateRetention(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, _, err := f.svc.CreateDirect(ctx, member("alice"), "bob", "")
	require.NoError(t, err)

	updated, err := f.svc.UpdateRetention(ctx, member("bob"), c.ID, types.Retention30Days)
	require.NoError(t, err)
	assert.Equal(t, types.Retention30Days, updated.RetentionPolicy)

	_, err = f.svc.UpdateRetention(ctx, member("bob"), c.ID, "1y")
	assert.True(t, types.IsKind(err, types.KindValidation))

	_, err = f.svc.UpdateRetention(ctx, member("carol"), c.ID, types.Retention7Days)
	assert.True(t, types.IsKind(err, types.KindAccessDenied))
}

func TestListForUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	direct, _, err := f.svc.CreateDirect(ctx, member("alice"), "bob", "")
	require.NoError(t, err)
	team, err := f.svc.CreateTeam(ctx, member("alice"), "core", "")
	require.NoError(t, err)
	f.roster.SetTeam("other", "carol")
	other, err := f.svc.CreateTeam(ctx, member("carol"), "other", "")
	require.NoError(t, err)

	ids := func(cs []domain.Conversation) []domain.ConversationID {
		out := make([]domain.ConversationID, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}

	got, err := f.svc.ListForUser(ctx, member("bob"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.ConversationID{direct.ID, team.ID}, ids(got))

	got, err = f.svc.ListForUser(ctx, member("root"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.ConversationID{team.ID, other.ID}, ids(got))
}

func TestParticipants_IncludeRegisteredKeys(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, _, err := f.svc.CreateDirect(ctx, member("alice"), "bob", "")
	require.NoError(t, err)

	require.NoError(t, f.keys.RegisterKey(ctx, domain.PublicKeyRecord{
		UserID: "bob", DeviceID: "phone", PublicKey: "cHVi", Algorithm: types.AlgorithmX25519AESGCM,
	}))

	parts, err := f.svc.Participants(ctx, member("alice"), c.ID)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	byID := map[domain.UserID]domain.Participant{}
	for _, p := range parts {
		byID[p.UserID] = p
	}
	assert.Equal(t, "cHVi", byID["bob"].PublicKey)
	assert.Empty(t, byID["alice"].PublicKey)
}
