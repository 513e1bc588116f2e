package permissions

import (
	"testing"

	"github.com/guildwarden/warden/config"
	"github.com/guildwarden/warden/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func testPolicy() *Policy {
	return NewPolicy(config.PermissionsConfig{
		Owners:         []string{"botowner"},
		AdminRoles:     []string{"r-admin"},
		ModeratorRoles: []string{"r-mod"},
		HelperRoles:    []string{"r-helper"},
		Commands: map[string]string{
			"purge": "admin",
			"kick":  "bogus",
		},
	})
}

func TestLevels(t *testing.T) {
	assert := assert.New(t)
	p := testPolicy()

	assert.Equal(LevelOwner, p.LevelOf(Actor{UserID: "botowner"}))
	assert.Equal(LevelAdmin, p.LevelOf(Actor{UserID: "a", IsGuildOwner: true}))
	assert.Equal(LevelAdmin, p.LevelOf(Actor{UserID: "a", Permissions: discordgo.PermissionAdministrator}))
	assert.Equal(LevelAdmin, p.LevelOf(Actor{UserID: "a", Roles: []string{"r-admin"}}))
	assert.Equal(LevelModerator, p.LevelOf(Actor{UserID: "a", Roles: []string{"other", "r-mod"}}))
	assert.Equal(LevelHelper, p.LevelOf(Actor{UserID: "a", Roles: []string{"r-helper"}}))
	assert.Equal(LevelUser, p.LevelOf(Actor{UserID: "a", Roles: []string{"other"}}))

	assert.True(p.IsStaff(Actor{UserID: "a", Roles: []string{"r-helper"}}))
	assert.False(p.IsStaff(Actor{UserID: "a"}))

	lvl, err := ParseLevel("Moderator")
	assert.NoError(err)
	assert.Equal(LevelModerator, lvl)
	_, err = ParseLevel("emperor")
	assert.Error(err)
	assert.Equal("helper", LevelHelper.String())
}

func TestCommandLevels(t *testing.T) {
	assert := assert.New(t)
	p := testPolicy()

	assert.Equal(LevelAdmin, p.Required("purge"))
	// invalid override keeps the default, and is reported
	assert.Equal(LevelModerator, p.Required("kick"))
	assert.Len(p.Problems, 1)
	assert.Equal(LevelHelper, p.Required("WARN"))
	// unknown commands fail closed
	assert.Equal(LevelAdmin, p.Required("self-destruct"))
}

func TestAuthorize(t *testing.T) {
	assert := assert.New(t)
	p := testPolicy()

	mod := Actor{UserID: "mod", Roles: []string{"r-mod"}, TopRolePosition: 5}
	helper := Actor{UserID: "helper", Roles: []string{"r-helper"}, TopRolePosition: 3}
	member := Target{UserID: "member", TopRolePosition: 1}
	peer := Target{UserID: "peer", TopRolePosition: 5}
	owner := Target{UserID: "gowner", TopRolePosition: 0, IsGuildOwner: true}

	assert.True(p.Authorize(mod, "ban", &member))
	assert.False(p.Authorize(mod, "ban", &peer))
	assert.False(p.Authorize(mod, "ban", &owner))
	assert.False(p.Authorize(mod, "ban", &Target{UserID: "mod", TopRolePosition: 0}))
	assert.False(p.Authorize(mod, "purge", nil))

	assert.True(p.Authorize(helper, "warn", &member))
	assert.False(p.Authorize(helper, "kick", &member))
	assert.False(p.Authorize(Actor{UserID: "nobody"}, "warn", &member))

	// guild owner outranks everyone except a configured bot owner's bypass
	gowner := Actor{UserID: "gowner", IsGuildOwner: true}
	assert.True(p.Authorize(gowner, "ban", &peer))

	botowner := Actor{UserID: "botowner"}
	assert.True(p.Authorize(botowner, "ban", &owner))
	assert.True(p.Authorize(botowner, "purge", nil))
}

func TestActorFromMember(t *testing.T) {
	assert := assert.New(t)
	p := testPolicy()

	g := &platform.Guild{
		ID:      "g1",
		OwnerID: "gowner",
		Roles: []platform.Role{
			{ID: "g1", Position: 0},
			{ID: "r-mod", Position: 5},
			{ID: "r-top", Position: 9, Permissions: discordgo.PermissionAdministrator},
		},
	}
	modMember := &platform.Member{GuildID: "g1", UserID: "mod", Roles: []string{"r-mod"}}
	topMember := &platform.Member{GuildID: "g1", UserID: "top", Roles: []string{"r-top"}}

	actor := ActorFromMember(g, modMember)
	assert.Equal(5, actor.TopRolePosition)
	assert.Equal(LevelModerator, p.LevelOf(actor))

	target := TargetFromMember(g, topMember)
	assert.Equal(9, target.TopRolePosition)
	assert.False(p.Authorize(actor, "kick", &target))
	assert.Equal(LevelAdmin, p.LevelOf(ActorFromMember(g, topMember)))
}
