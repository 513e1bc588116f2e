package moderation

import (
	"fmt"
	"testing"

	"github.com/guildwarden/warden/config"
	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"
)

func testOrchestrator(t *testing.T) (*Orchestrator, *platform.MockClient, *modstore.GormStore) {
	t.Helper()
	db, err := modstore.SetupDatabase(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", t.Name()), 1, nil)
	if err != nil {
		t.Fatalf("failed to setup test database: %v", err)
	}
	st, err := modstore.NewGormStore(db, nil)
	if err != nil {
		t.Fatalf("failed to setup store: %v", err)
	}
	t.Cleanup(func() {
		if sqldb, err := db.DB(); err == nil {
			_ = sqldb.Close()
		}
	})

	mc := platform.NewMockClient()
	mc.AddGuild(platform.Guild{ID: "g1", Name: "Test Guild", OwnerID: "owner"})
	mc.AddMember(platform.Member{GuildID: "g1", UserID: "u1", Username: "alice"})

	return NewOrchestrator(st, mc, config.NewHolder(config.Default()), nil), mc, st
}
