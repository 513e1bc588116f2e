package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"

	"github.com/stretchr/testify/assert"
)

func TestFormatModLogLine(t *testing.T) {
	assert := assert.New(t)

	secs := int64(600)
	assert.Equal("[timeout] <@u1> for 10 minutes by automod: Spam detected", FormatModLogLine(modstore.ModAction{
		Action:      modstore.ActionTimeout,
		UserID:      "u1",
		ModeratorID: modstore.SystemModerator,
		Reason:      "Spam detected",
		Duration:    &secs,
	}))
	assert.Equal("[lock] in <#c1> by <@m1>", FormatModLogLine(modstore.ModAction{
		Action:      modstore.ActionLock,
		UserID:      NoSubject,
		ModeratorID: "m1",
		Extra:       map[string]any{"channel_id": "c1"},
	}))
}

func TestModLogChannel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	o, mc, st := testOrchestrator(t)
	svc := NewService(o)
	req := Request{GuildID: "g1", UserID: "u1", ModeratorID: "mod1", Reason: "rude"}

	// no settings row yet
	_, err := svc.Warn(ctx, req)
	assert.NoError(err)
	assert.Equal(0, mc.CallCount("send"))

	assert.NoError(st.UpdateGuildSettings(ctx, "g1", map[string]any{modstore.SettingLogChannel: "modlog"}))
	assert.NoError(svc.Timeout(ctx, req, 2*time.Hour))
	assert.Equal([]string{"[timeout] <@u1> for 2 hours by <@mod1>: rude"}, mc.Sent["modlog"])

	// a failing post does not fail the action
	mc.FailWith("send", platform.ErrForbidden)
	assert.NoError(svc.Kick(ctx, req))
	hist, err := st.GetUserHistory(ctx, "g1", "u1", 10)
	assert.NoError(err)
	assert.Equal(modstore.ActionKick, hist[0].Action)
}
