package main

import (
	"log/slog"
	"testing"

	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/moderation"
	"github.com/guildwarden/warden/platform"
)

// Server wired to the engine fixture: guild "g1" with a moderator role "mod", moderator "m1", and plain member "u1".
func testServer(t *testing.T) (*Server, *platform.MockClient) {
	t.Helper()
	eng, mc := engine.EngineTestFixture()

	mc.AddGuild(platform.Guild{
		ID:      "g1",
		Name:    "Test Guild",
		OwnerID: "owner",
		Roles: []platform.Role{
			{ID: "g1", Name: "@everyone", Position: 0},
			{ID: "helper", Name: "Helpers", Position: 3},
			{ID: "mod", Name: "Moderators", Position: 5},
		},
	})
	mc.AddMember(platform.Member{GuildID: "g1", UserID: "m1", Username: "mod-mary", Roles: []string{"mod"}})
	mc.AddMember(platform.Member{GuildID: "g1", UserID: "m2", Username: "mod-max", Roles: []string{"mod"}})
	mc.AddMember(platform.Member{GuildID: "g1", UserID: "h1", Username: "helper-hal", Roles: []string{"helper"}})

	cfg := eng.Config.Get()
	cfg.Permissions.ModeratorRoles = []string{"mod"}
	cfg.Permissions.HelperRoles = []string{"helper"}

	orch, ok := eng.Punisher.(*moderation.Orchestrator)
	if !ok {
		t.Fatalf("unexpected punisher type %T", eng.Punisher)
	}
	srv := &Server{
		logger: slog.Default(),
		config: eng.Config,
		store:  eng.Store,
		client: mc,
		engine: eng,
		mod:    moderation.NewService(orch),
	}
	srv.setPolicy(cfg)
	eng.Staff = srv
	return srv, mc
}

func modInvocation(command, userID string) *invocation {
	return &invocation{
		Command:   command,
		GuildID:   "g1",
		ChannelID: "c1",
		Invoker:   platform.Member{GuildID: "g1", UserID: "m1", Roles: []string{"mod"}},
		UserID:    userID,
	}
}
