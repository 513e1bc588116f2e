package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/guildwarden/warden/automod/cachestore"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/setstore"
	"github.com/guildwarden/warden/config"
	"github.com/guildwarden/warden/moderation"
	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"
)

var _ MessageRuleFunc = simpleRule

func simpleRule(c *MessageContext) error {
	if c.InSet("bad-words", c.Message.Content) {
		c.DeleteMessage()
		c.AddViolation(modstore.ViolationBadWords, c.Config.BadWords.DetectorConfig, "exact bad word")
	}
	return nil
}

var fixtureSeq atomic.Int64

// Engine wired to in-memory stores, an in-memory sqlite database, and a mock platform with guild "g1" and member "u1".
func EngineTestFixture() (*Engine, *platform.MockClient) {
	dburl := fmt.Sprintf("sqlite://file:engine-fixture-%d?mode=memory&cache=shared", fixtureSeq.Add(1))
	db, err := modstore.SetupDatabase(dburl, 1, nil)
	if err != nil {
		panic(err)
	}
	store, err := modstore.NewGormStore(db, nil)
	if err != nil {
		panic(err)
	}

	mc := platform.NewMockClient()
	mc.AddGuild(platform.Guild{ID: "g1", Name: "Fixture Guild", OwnerID: "owner"})
	mc.AddMember(platform.Member{GuildID: "g1", UserID: "u1", Username: "alice"})

	sets := setstore.NewMemSetStore()
	sets.Sets["bad-words"] = map[string]bool{"slur": true}

	cfg := config.NewHolder(config.Default())
	engine := Engine{
		Logger:   slog.Default(),
		Config:   cfg,
		Rules:    RuleSet{MessageRules: []MessageRuleFunc{simpleRule}},
		Tracker:  NewTracker(),
		Counters: countstore.NewMemCountStore(),
		Sets:     sets,
		Cache:    cachestore.NewMemCacheStore(1000, time.Hour),
		Platform: mc,
		Store:    store,
		Punisher: moderation.NewOrchestrator(store, mc, cfg, nil),
	}
	return &engine, mc
}

// Message from member "u1" in guild "g1". The message is also registered with the mock platform, so it can be deleted.
func MessageFixture(mc *platform.MockClient, id, content string) Message {
	msg := Message{
		ID:         id,
		GuildID:    "g1",
		ChannelID:  "c1",
		AuthorID:   "u1",
		AuthorName: "alice",
		Content:    content,
		Timestamp:  time.Now(),
	}
	mc.AddMessage(msg.ChannelID, msg.ID)
	return msg
}

func ExtractEffects(c *BaseContext) *Effects {
	return c.effects
}
