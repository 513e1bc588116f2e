package rules

import (
	"context"
	"testing"

	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/config"
	"github.com/guildwarden/warden/platform"
)

func engineFixture(t *testing.T) (*engine.Engine, *platform.MockClient) {
	t.Helper()
	eng, mc := engine.EngineTestFixture()
	eng.Rules = DefaultRules()
	cfg := *config.Default()
	cfg.Automod.BadWords.Words = []string{"badword"}
	eng.Config.Set(&cfg)
	return eng, mc
}

func messageContext(eng *engine.Engine, mc *platform.MockClient, id, content string) *engine.MessageContext {
	c := engine.NewMessageContext(context.Background(), eng, &eng.Config.Get().Automod, engine.MessageFixture(mc, id, content))
	return &c
}
