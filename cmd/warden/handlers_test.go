package main

import (
	"context"
	"testing"
	"time"

	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestMessageFromEvent(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()

	msg := messageFromEvent(&discordgo.Message{
		ID:        "m100",
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   "hello",
		Timestamp: now,
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
		Member:    &discordgo.Member{Roles: []string{"r1"}},
	})
	assert.Equal("m100", msg.ID)
	assert.Equal("u1", msg.AuthorID)
	assert.Equal("alice", msg.AuthorName)
	assert.False(msg.AuthorBot)
	assert.Equal([]string{"r1"}, msg.AuthorRoles)
	assert.Equal(now, msg.Timestamp)

	// webhook-style messages without member info
	msg = messageFromEvent(&discordgo.Message{ID: "m101", Author: &discordgo.User{ID: "b1", Bot: true}})
	assert.True(msg.AuthorBot)
	assert.Nil(msg.AuthorRoles)
}

func TestMessageLogHandlers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	srv, _ := testServer(t)

	srv.onMessageUpdate(nil, &discordgo.MessageUpdate{
		Message: &discordgo.Message{
			ID:        "m1",
			GuildID:   "g1",
			ChannelID: "c1",
			Content:   "edited text",
			Author:    &discordgo.User{ID: "u1"},
		},
		BeforeUpdate: &discordgo.Message{ID: "m1", Content: "original text"},
	})
	srv.onMessageDelete(nil, &discordgo.MessageDelete{
		Message: &discordgo.Message{ID: "m2", GuildID: "g1", ChannelID: "c1"},
		BeforeDelete: &discordgo.Message{
			ID:      "m2",
			Content: "gone",
			Author:  &discordgo.User{ID: "u1"},
		},
	})
	// bot messages are not logged
	srv.onMessageDelete(nil, &discordgo.MessageDelete{
		Message:      &discordgo.Message{ID: "m3", GuildID: "g1", ChannelID: "c1"},
		BeforeDelete: &discordgo.Message{ID: "m3", Author: &discordgo.User{ID: "b1", Bot: true}},
	})

	res, err := srv.store.CleanupOldData(ctx, -time.Hour)
	assert.NoError(err)
	assert.Equal(int64(2), res.MessageLogs)
}

func TestEventLogChannel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	srv, mc := testServer(t)

	// no log channel configured: nothing is posted
	srv.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u7", Username: "newbie"}}})
	assert.Equal(0, mc.CallCount("send"))

	assert.NoError(srv.store.UpdateGuildSettings(ctx, "g1", map[string]any{modstore.SettingLogChannel: "modlog"}))

	srv.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u7", Username: "newbie"}}})
	srv.onMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u7", Username: "newbie"}}})
	srv.onBanAdd(nil, &discordgo.GuildBanAdd{GuildID: "g1", User: &discordgo.User{ID: "u8", Username: "troll"}})
	srv.onBanRemove(nil, &discordgo.GuildBanRemove{GuildID: "g1", User: &discordgo.User{ID: "u8", Username: "troll"}})
	srv.onRoleCreate(nil, &discordgo.GuildRoleCreate{GuildRole: &discordgo.GuildRole{GuildID: "g1", Role: &discordgo.Role{ID: "r9", Name: "Artists"}}})
	srv.onRoleDelete(nil, &discordgo.GuildRoleDelete{GuildID: "g1", RoleID: "r9"})
	srv.onChannelCreate(nil, &discordgo.ChannelCreate{Channel: &discordgo.Channel{ID: "c9", GuildID: "g1", Name: "art"}})
	srv.onChannelDelete(nil, &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: "c9", GuildID: "g1", Name: "art"}})
	srv.onMessageUpdate(nil, &discordgo.MessageUpdate{
		Message: &discordgo.Message{
			ID:        "m1",
			GuildID:   "g1",
			ChannelID: "c1",
			Content:   "edited text",
			Author:    &discordgo.User{ID: "u1"},
		},
		BeforeUpdate: &discordgo.Message{ID: "m1", Content: "original text"},
	})
	srv.onMessageDelete(nil, &discordgo.MessageDelete{
		Message: &discordgo.Message{ID: "m2", GuildID: "g1", ChannelID: "c1"},
		BeforeDelete: &discordgo.Message{
			ID:      "m2",
			Content: "gone",
			Author:  &discordgo.User{ID: "u1"},
		},
	})
	srv.onMessageDelete(nil, &discordgo.MessageDelete{Message: &discordgo.Message{ID: "m3", GuildID: "g1", ChannelID: "c1"}})

	assert.Equal([]string{
		"[member joined] <@u7> (newbie)",
		"[member left] <@u7> (newbie)",
		"[member banned] <@u8> (troll)",
		"[member unbanned] <@u8> (troll)",
		"[role created] Artists (r9)",
		"[role deleted] r9",
		"[channel created] <#c9> (art)",
		"[channel deleted] #art (c9)",
		`[message edited] <@u1> in <#c1>: "original text" -> "edited text"`,
		`[message deleted] <@u1> in <#c1>: "gone"`,
		"[message deleted] m3 in <#c1>",
	}, mc.Sent["modlog"])

	// a failing log channel does not break event handling
	mc.FailWith("send", platform.ErrForbidden)
	srv.onBanAdd(nil, &discordgo.GuildBanAdd{GuildID: "g1", User: &discordgo.User{ID: "u9"}})
	assert.Len(mc.Sent["modlog"], 11)
}

func TestHandlerRecovers(t *testing.T) {
	srv, _ := testServer(t)
	// the event has no member, so the handler panics; it must not escape
	srv.onMemberAdd(nil, &discordgo.GuildMemberAdd{})
}
