package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"

	"github.com/stretchr/testify/assert"
)

func TestServiceWarnUnwarn(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	o, _, st := testOrchestrator(t)
	svc := NewService(o)

	req := Request{GuildID: "g1", UserID: "u1", ModeratorID: "mod1", Reason: "rude"}

	removed, err := svc.Unwarn(ctx, req)
	assert.NoError(err)
	assert.False(removed)
	hist, err := st.GetUserHistory(ctx, "g1", "u1", 10)
	assert.NoError(err)
	assert.Empty(hist)

	res, err := svc.Warn(ctx, req)
	assert.NoError(err)
	assert.Equal(1, res.WarningCount)

	warnings, err := svc.Warnings(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Len(warnings, 1)

	removed, err = svc.Unwarn(ctx, req)
	assert.NoError(err)
	assert.True(removed)

	count, err := st.GetWarningCount(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(0, count)

	hist, err = svc.History(ctx, "g1", "u1", 10)
	assert.NoError(err)
	assert.Len(hist, 2)

	logs, err := st.GetStaffLogs(ctx, "g1", 10)
	assert.NoError(err)
	assert.Len(logs, 2)
}

func TestServiceUntimeout(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	o, mc, st := testOrchestrator(t)
	svc := NewService(o)

	req := Request{GuildID: "g1", UserID: "u1", ModeratorID: "mod1"}
	assert.NoError(svc.Timeout(ctx, req, time.Hour))
	assert.True(mc.Member("g1", "u1").IsTimedOut(time.Now()))

	assert.NoError(svc.Untimeout(ctx, req))
	assert.False(mc.Member("g1", "u1").IsTimedOut(time.Now()))

	// the pending temp action was closed with the manual lift
	expired, err := st.GetExpiredTempActions(ctx, time.Now().Add(2*time.Hour))
	assert.NoError(err)
	assert.Empty(expired)
}

func TestServiceBanUnban(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	o, mc, st := testOrchestrator(t)
	svc := NewService(o)

	req := Request{GuildID: "g1", UserID: "u1", ModeratorID: "mod1"}

	ok, err := svc.Unban(ctx, req)
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(svc.Ban(ctx, req, time.Hour))
	ok, err = svc.Unban(ctx, req)
	assert.NoError(err)
	assert.True(ok)
	_, err = mc.FetchBan(ctx, "g1", "u1")
	assert.True(platform.IsNotFound(err))

	expired, err := st.GetExpiredTempActions(ctx, time.Now().Add(2*time.Hour))
	assert.NoError(err)
	assert.Empty(expired)

	hist, err := svc.History(ctx, "g1", "u1", 10)
	assert.NoError(err)
	if assert.Len(hist, 2) {
		assert.Equal(modstore.ActionUnban, hist[0].Action)
	}
}

func TestServicePurgeAndLock(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	o, mc, st := testOrchestrator(t)
	svc := NewService(o)

	for _, id := range []string{"m1", "m2", "m3"} {
		mc.AddMessage("c1", id)
	}
	req := Request{GuildID: "g1", ModeratorID: "mod1"}

	_, err := svc.Purge(ctx, req, "c1", 0)
	assert.Error(err)
	_, err = svc.Purge(ctx, req, "c1", MaxPurge+1)
	assert.Error(err)

	n, err := svc.Purge(ctx, req, "c1", 10)
	assert.NoError(err)
	assert.Equal(3, n)

	hist, err := st.GetUserHistory(ctx, "g1", NoSubject, 10)
	assert.NoError(err)
	if assert.Len(hist, 1) {
		assert.Equal(modstore.ActionPurge, hist[0].Action)
		assert.Equal("c1", hist[0].Extra["channel_id"])
	}

	assert.NoError(svc.Lock(ctx, req, "c1"))
	assert.True(mc.Locked["c1"])
	assert.NoError(svc.Unlock(ctx, req, "c1"))
	assert.False(mc.Locked["c1"])

	mc.FailWith("channel_send", platform.ErrForbidden)
	err = svc.Lock(ctx, req, "c2")
	assert.True(platform.IsForbidden(err))
}
