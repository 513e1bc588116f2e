package modstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testStore(t *testing.T) *GormStore {
	t.Helper()
	// a distinct named in-memory database per test, so tests don't see each other's rows
	db, err := SetupDatabase(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", t.Name()), 1, nil)
	if err != nil {
		t.Fatalf("failed to setup test database: %v", err)
	}
	st, err := NewGormStore(db, nil)
	if err != nil {
		t.Fatalf("failed to setup store: %v", err)
	}
	t.Cleanup(func() {
		if sqldb, err := db.DB(); err == nil {
			_ = sqldb.Close()
		}
	})
	return st
}

func TestSetupDatabaseSchemes(t *testing.T) {
	assert := assert.New(t)

	_, err := SetupDatabase("mysql://localhost/db", 1, nil)
	assert.Error(err)
	_, err = SetupDatabase("", 1, nil)
	assert.Error(err)
}

func TestWarnings(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	removed, err := st.RemoveWarning(ctx, "g1", "u1")
	assert.NoError(err)
	assert.False(removed)

	_, err = st.AddWarning(ctx, "g1", "u1", "mod1", "first")
	assert.NoError(err)
	_, err = st.AddWarning(ctx, "g1", "u1", "mod1", "second")
	assert.NoError(err)
	// same user in another guild is a different subject
	_, err = st.AddWarning(ctx, "g2", "u1", "mod1", "elsewhere")
	assert.NoError(err)

	count, err := st.GetWarningCount(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(2, count)

	removed, err = st.RemoveWarning(ctx, "g1", "u1")
	assert.NoError(err)
	assert.True(removed)

	active, err := st.GetWarnings(ctx, "g1", "u1", true)
	assert.NoError(err)
	assert.Len(active, 1)
	assert.Equal("first", active[0].Reason)

	all, err := st.GetWarnings(ctx, "g1", "u1", false)
	assert.NoError(err)
	assert.Len(all, 2)

	count, err = st.GetWarningCount(ctx, "g2", "u1")
	assert.NoError(err)
	assert.Equal(1, count)
}

func TestRemoveWarningSingle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	w, err := st.AddWarning(ctx, "g1", "u1", "mod1", "only")
	assert.NoError(err)

	removed, err := st.RemoveWarning(ctx, "g1", "u1")
	assert.NoError(err)
	assert.True(removed)

	all, err := st.GetWarnings(ctx, "g1", "u1", false)
	assert.NoError(err)
	assert.Len(all, 1)
	assert.Equal(w.ID, all[0].ID)
	assert.False(all[0].Active)

	removed, err = st.RemoveWarning(ctx, "g1", "u1")
	assert.NoError(err)
	assert.False(removed)
}

func TestModActionRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	act := ModAction{
		GuildID:     "g1",
		UserID:      "u1",
		ModeratorID: "mod1",
		Action:      ActionTimeout,
		Reason:      "cool off",
		Extra:       map[string]any{"channel_id": "c1"},
	}
	act.SetDuration(time.Hour)
	assert.NoError(st.LogModAction(ctx, &act))
	assert.NoError(st.LogModAction(ctx, &ModAction{GuildID: "g1", UserID: "u1", ModeratorID: SystemModerator, Action: ActionWarn}))

	hist, err := st.GetUserHistory(ctx, "g1", "u1", 0)
	assert.NoError(err)
	assert.Len(hist, 2)

	var found *ModAction
	for i := range hist {
		if hist[i].Action == ActionTimeout {
			found = &hist[i]
		}
	}
	if assert.NotNil(found) {
		assert.Equal("g1", found.GuildID)
		assert.Equal("u1", found.UserID)
		if assert.NotNil(found.Duration) {
			assert.Equal(int64(3600), *found.Duration)
		}
		assert.Equal("c1", found.Extra["channel_id"])
	}

	stats, err := st.GetModStats(ctx, "g1", time.Now().Add(-24*time.Hour))
	assert.NoError(err)
	assert.Equal(int64(1), stats[ActionTimeout])
	assert.Equal(int64(1), stats[ActionWarn])

	hist, err = st.GetUserHistory(ctx, "g2", "u1", 10)
	assert.NoError(err)
	assert.Empty(hist)
}

func TestTempActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	a, err := st.AddTempAction(ctx, "g1", "u1", TempTimeout, past)
	assert.NoError(err)
	_, err = st.AddTempAction(ctx, "g1", "u2", TempBan, future)
	assert.NoError(err)

	expired, err := st.GetExpiredTempActions(ctx, now)
	assert.NoError(err)
	assert.Len(expired, 1)
	assert.Equal(a.ID, expired[0].ID)
	assert.Equal(TempTimeout, expired[0].Action)

	assert.NoError(st.CompleteTempAction(ctx, a.ID))
	expired, err = st.GetExpiredTempActions(ctx, now)
	assert.NoError(err)
	assert.Empty(expired)

	assert.ErrorIs(st.CompleteTempAction(ctx, 999999), ErrNotFound)

	n, err := st.CompleteActiveTempActions(ctx, "g1", "u2", TempBan)
	assert.NoError(err)
	assert.Equal(int64(1), n)
	expired, err = st.GetExpiredTempActions(ctx, future.Add(time.Minute))
	assert.NoError(err)
	assert.Empty(expired)
}

func TestTempActionUpsert(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	now := time.Now()
	first, err := st.AddTempAction(ctx, "g1", "u1", TempTimeout, now.Add(-time.Hour))
	assert.NoError(err)
	second, err := st.AddTempAction(ctx, "g1", "u1", TempTimeout, now.Add(-time.Minute))
	assert.NoError(err)
	assert.Equal(first.ID, second.ID)

	// a different kind for the same subject is a separate row
	other, err := st.AddTempAction(ctx, "g1", "u1", TempBan, now.Add(-time.Minute))
	assert.NoError(err)
	assert.NotEqual(first.ID, other.ID)

	expired, err := st.GetExpiredTempActions(ctx, now)
	assert.NoError(err)
	assert.Len(expired, 2)
	for _, ta := range expired {
		if ta.ID == first.ID {
			assert.WithinDuration(now.Add(-time.Minute), ta.ExpiresAt, time.Second)
		}
	}

	// once completed, a new temp action creates a fresh row
	assert.NoError(st.CompleteTempAction(ctx, first.ID))
	third, err := st.AddTempAction(ctx, "g1", "u1", TempTimeout, now.Add(time.Hour))
	assert.NoError(err)
	assert.NotEqual(first.ID, third.ID)
}

func TestTempActionUpsertConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	base := time.Now().Add(-time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.AddTempAction(ctx, "g1", "u1", TempBan, base.Add(time.Duration(i)*time.Minute))
			assert.NoError(err)
		}(i)
	}
	wg.Wait()

	expired, err := st.GetExpiredTempActions(ctx, time.Now())
	assert.NoError(err)
	assert.Len(expired, 1)

	// the partial unique index rejects a second pending row, but not a completed one
	dup := TempAction{GuildID: "g1", UserID: "u1", Action: TempBan, ExpiresAt: base, CreatedAt: time.Now()}
	assert.Error(st.db.WithContext(ctx).Create(&dup).Error)
	done := TempAction{GuildID: "g1", UserID: "u1", Action: TempBan, ExpiresAt: base, Completed: true, CreatedAt: time.Now()}
	assert.NoError(st.db.WithContext(ctx).Create(&done).Error)
}

func TestAutomodViolations(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	for _, v := range []AutomodViolation{
		{GuildID: "g1", UserID: "u1", Kind: ViolationSpam, ChannelID: "c1", Content: "spam", ActionTaken: "timeout"},
		{GuildID: "g1", UserID: "u1", Kind: ViolationCaps, ChannelID: "c1", Content: "LOUD", ActionTaken: "warn"},
		{GuildID: "g1", UserID: "u2", Kind: ViolationCaps, ChannelID: "c2", Content: "ALSO LOUD", ActionTaken: "warn"},
	} {
		assert.NoError(st.LogAutomodViolation(ctx, &v))
	}

	all, err := st.GetAutomodViolations(ctx, "g1", "", "", 0)
	assert.NoError(err)
	assert.Len(all, 3)

	byUser, err := st.GetAutomodViolations(ctx, "g1", "u1", "", 0)
	assert.NoError(err)
	assert.Len(byUser, 2)

	byKind, err := st.GetAutomodViolations(ctx, "g1", "", ViolationCaps, 0)
	assert.NoError(err)
	assert.Len(byKind, 2)

	limited, err := st.GetAutomodViolations(ctx, "g1", "", "", 1)
	assert.NoError(err)
	assert.Len(limited, 1)
}

func TestGuildSettings(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	_, err := st.GetGuildSettings(ctx, "g1")
	assert.ErrorIs(err, ErrNotFound)

	assert.NoError(st.SetupGuild(ctx, "g1"))
	// second setup is a no-op
	assert.NoError(st.SetupGuild(ctx, "g1"))

	gs, err := st.GetGuildSettings(ctx, "g1")
	assert.NoError(err)
	assert.True(gs.Bool("automod_enabled", true))

	assert.NoError(st.UpdateGuildSettings(ctx, "g1", map[string]any{"automod_enabled": false}))
	assert.NoError(st.UpdateGuildSettings(ctx, "g1", map[string]any{"log_channel_id": "c9"}))

	gs, err = st.GetGuildSettings(ctx, "g1")
	assert.NoError(err)
	assert.False(gs.Bool("automod_enabled", true))
	assert.Equal("c9", gs.String("log_channel_id"))

	// update creates the row when missing
	assert.NoError(st.UpdateGuildSettings(ctx, "g2", map[string]any{"automod_enabled": true}))
	gs, err = st.GetGuildSettings(ctx, "g2")
	assert.NoError(err)
	assert.True(gs.Bool("automod_enabled", false))
}

func TestStaffAndMessageLogs(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	assert.NoError(st.LogStaffAction(ctx, "g1", "mod1", "ban", map[string]any{"target": "u1"}))
	assert.NoError(st.LogStaffAction(ctx, "g1", "mod1", "reload", nil))

	logs, err := st.GetStaffLogs(ctx, "g1", 10)
	assert.NoError(err)
	assert.Len(logs, 2)

	assert.NoError(st.LogMessageAction(ctx, &MessageLog{GuildID: "g1", ChannelID: "c1", MessageID: "m1", UserID: "u1", Action: "delete", OldContent: "hi"}))
}

func TestCleanupOldData(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	old := time.Now().Add(-400 * 24 * time.Hour)
	assert.NoError(st.LogMessageAction(ctx, &MessageLog{GuildID: "g1", Action: "delete", CreatedAt: old}))
	assert.NoError(st.LogMessageAction(ctx, &MessageLog{GuildID: "g1", Action: "delete"}))
	assert.NoError(st.LogAutomodViolation(ctx, &AutomodViolation{GuildID: "g1", UserID: "u1", Kind: ViolationSpam, CreatedAt: old}))

	ta, err := st.AddTempAction(ctx, "g1", "u1", TempTimeout, old)
	assert.NoError(err)
	assert.NoError(st.CompleteTempAction(ctx, ta.ID))

	res, err := st.CleanupOldData(ctx, 365*24*time.Hour)
	assert.NoError(err)
	assert.Equal(int64(1), res.MessageLogs)
	assert.Equal(int64(1), res.AutomodViolations)
	// temp action rows are aged by creation time, which is recent
	assert.Equal(int64(0), res.TempActions)

	vs, err := st.GetAutomodViolations(ctx, "g1", "", "", 0)
	assert.NoError(err)
	assert.Empty(vs)
}
