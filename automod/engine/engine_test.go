package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"

	"github.com/stretchr/testify/assert"
)

type staffSet map[string]bool

func (s staffSet) IsStaff(ctx context.Context, guildID, userID string, roles []string) bool {
	return s[userID]
}

func TestEngineBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc := EngineTestFixture()

	clean := MessageFixture(mc, "m1", "hello there")
	assert.NoError(eng.ProcessMessage(ctx, clean))
	assert.Equal(0, mc.CallCount("delete_message"))
	assert.True(mc.HasMessage("c1", "m1"))

	bad := MessageFixture(mc, "m2", "slur")
	assert.NoError(eng.ProcessMessage(ctx, bad))
	assert.Equal(1, mc.CallCount("delete_message"))
	assert.False(mc.HasMessage("c1", "m2"))

	count, err := eng.Store.GetWarningCount(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(1, count)

	violations, err := eng.Store.GetAutomodViolations(ctx, "g1", "u1", "", 10)
	assert.NoError(err)
	if assert.Len(violations, 1) {
		assert.Equal(modstore.ViolationBadWords, violations[0].Kind)
		assert.Equal("c1", violations[0].ChannelID)
		assert.Equal("slur", violations[0].Content)
		assert.Equal("warn", violations[0].ActionTaken)
	}

	n, err := eng.Counters.GetCount(ctx, "violation", ViolationCounterKey("g1", modstore.ViolationBadWords), countstore.PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, n)

	// redelivery of the same event is a no-op
	assert.NoError(eng.ProcessMessage(ctx, bad))
	assert.Equal(1, mc.CallCount("delete_message"))
	count, err = eng.Store.GetWarningCount(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(1, count)
}

func TestEngineSkips(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc := EngineTestFixture()
	eng.Staff = staffSet{"mod1": true}

	bot := MessageFixture(mc, "m1", "slur")
	bot.AuthorBot = true
	assert.NoError(eng.ProcessMessage(ctx, bot))

	staff := MessageFixture(mc, "m2", "slur")
	staff.AuthorID = "mod1"
	assert.NoError(eng.ProcessMessage(ctx, staff))

	dm := MessageFixture(mc, "m3", "slur")
	dm.GuildID = ""
	assert.NoError(eng.ProcessMessage(ctx, dm))

	assert.Equal(0, mc.CallCount("delete_message"))

	// per-guild override
	assert.NoError(eng.Store.SetupGuild(ctx, "g1"))
	assert.NoError(eng.Store.UpdateGuildSettings(ctx, "g1", map[string]any{SettingAutomodEnabled: false}))
	assert.NoError(eng.PurgeGuildCaches(ctx, "g1"))
	assert.NoError(eng.ProcessMessage(ctx, MessageFixture(mc, "m4", "slur")))
	assert.Equal(0, mc.CallCount("delete_message"))

	assert.NoError(eng.Store.UpdateGuildSettings(ctx, "g1", map[string]any{SettingAutomodEnabled: true}))
	assert.NoError(eng.PurgeGuildCaches(ctx, "g1"))
	assert.NoError(eng.ProcessMessage(ctx, MessageFixture(mc, "m5", "slur")))
	assert.Equal(1, mc.CallCount("delete_message"))

	// global switch
	cfg := *eng.Config.Get()
	cfg.Automod.Enabled = false
	eng.Config.Set(&cfg)
	assert.NoError(eng.ProcessMessage(ctx, MessageFixture(mc, "m6", "slur")))
	assert.Equal(1, mc.CallCount("delete_message"))
}

func TestEngineMessageAlreadyGone(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc := EngineTestFixture()

	msg := MessageFixture(mc, "m1", "slur")
	// removed by somebody else before we got to it
	assert.NoError(mc.DeleteMessage(ctx, "c1", "m1", ""))

	assert.NoError(eng.ProcessMessage(ctx, msg))
	count, err := eng.Store.GetWarningCount(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(0, count)
}

func TestEngineDeleteForbidden(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc := EngineTestFixture()

	mc.FailWith("delete_message", platform.ErrForbidden)
	assert.NoError(eng.ProcessMessage(ctx, MessageFixture(mc, "m1", "slur")))

	// punishment still applied
	count, err := eng.Store.GetWarningCount(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(1, count)
}

func TestEngineRuleFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc := EngineTestFixture()

	var ran bool
	eng.Rules = RuleSet{MessageRules: []MessageRuleFunc{
		func(c *MessageContext) error {
			panic("boom")
		},
		func(c *MessageContext) error {
			return errors.New("broken rule")
		},
		func(c *MessageContext) error {
			ran = true
			return simpleRule(c)
		},
	}}

	assert.NoError(eng.ProcessMessage(ctx, MessageFixture(mc, "m1", "slur")))
	assert.True(ran)
	assert.Equal(1, mc.CallCount("delete_message"))
}

func TestInviteGuildCached(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc := EngineTestFixture()
	mc.AddInvite("abc", "g2")

	c := NewMessageContext(ctx, eng, &eng.Config.Get().Automod, MessageFixture(mc, "m1", "x"))
	g, ok := c.InviteGuild("abc")
	assert.True(ok)
	assert.Equal("g2", g)
	g, ok = c.InviteGuild("abc")
	assert.True(ok)
	assert.Equal("g2", g)
	assert.Equal(1, mc.CallCount("resolve_invite"))

	// failures are not cached
	_, ok = c.InviteGuild("missing")
	assert.False(ok)
	_, ok = c.InviteGuild("missing")
	assert.False(ok)
	assert.Equal(3, mc.CallCount("resolve_invite"))
}
