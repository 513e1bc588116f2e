package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/guildwarden/warden/automod/helpers"

	"gopkg.in/yaml.v3"
)

// Punishment kinds a detector may be configured with.
const (
	PunishWarn    = "warn"
	PunishTimeout = "timeout"
	PunishKick    = "kick"
	PunishBan     = "ban"
)

func validPunishment(p string) bool {
	switch p {
	case PunishWarn, PunishTimeout, PunishKick, PunishBan:
		return true
	}
	return false
}

type Config struct {
	Automod     AutomodConfig     `yaml:"automod"`
	Moderation  ModerationConfig  `yaml:"moderation"`
	Permissions PermissionsConfig `yaml:"permissions"`

	// Problems found while loading: sections that failed to decode and values replaced by defaults. Informational; loading still succeeded.
	Problems []string `yaml:"-"`
}

// Fields shared by every detector.
type DetectorConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Punishment string `yaml:"punishment"`
	// seconds; only meaningful for timeout (and temporary ban) punishments
	PunishmentDuration int `yaml:"punishment_duration"`
}

type SpamConfig struct {
	DetectorConfig `yaml:",inline"`
	MaxMessages    int `yaml:"max_messages"`
	// seconds
	TimeWindow int `yaml:"time_window"`
}

type CapsConfig struct {
	DetectorConfig `yaml:",inline"`
	Threshold      float64 `yaml:"threshold"`
	MinLength      int     `yaml:"min_length"`
}

type RepeatedTextConfig struct {
	DetectorConfig      `yaml:",inline"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// number of recent messages per user and channel to compare against
	History   int `yaml:"history"`
	MinLength int `yaml:"min_length"`
}

type BadWordsConfig struct {
	DetectorConfig `yaml:",inline"`
	Words          []string `yaml:"words"`
}

type InviteLinksConfig struct {
	DetectorConfig `yaml:",inline"`
	// guild IDs whose invites are allowed
	Whitelist []string `yaml:"whitelist"`
}

type AutomodConfig struct {
	Enabled      bool               `yaml:"enabled"`
	Spam         SpamConfig         `yaml:"spam"`
	Caps         CapsConfig         `yaml:"caps"`
	RepeatedText RepeatedTextConfig `yaml:"repeated_text"`
	BadWords     BadWordsConfig     `yaml:"bad_words"`
	InviteLinks  InviteLinksConfig  `yaml:"invite_links"`

	problems []string
}

type ModerationConfig struct {
	MaxWarnings             int  `yaml:"max_warnings"`
	AutoPunishOnMaxWarnings bool `yaml:"auto_punish_on_max_warnings"`
	DMOnPunishment          bool `yaml:"dm_on_punishment"`
	// 0 to 7
	BanDeleteMessageDays int `yaml:"ban_delete_message_days"`
}

type PermissionsConfig struct {
	// user IDs with owner level in every guild, in addition to each guild's actual owner
	Owners         []string `yaml:"owners"`
	AdminRoles     []string `yaml:"admin_roles"`
	ModeratorRoles []string `yaml:"moderator_roles"`
	HelperRoles    []string `yaml:"helper_roles"`
	// command name to minimum level name (owner, admin, moderator, helper, user); overrides built-in defaults
	Commands map[string]string `yaml:"commands"`
}

func Default() *Config {
	return &Config{
		Automod: AutomodConfig{
			Enabled: true,
			Spam: SpamConfig{
				DetectorConfig: DetectorConfig{Enabled: true, Punishment: PunishTimeout, PunishmentDuration: 600},
				MaxMessages:    5,
				TimeWindow:     10,
			},
			Caps: CapsConfig{
				DetectorConfig: DetectorConfig{Enabled: true, Punishment: PunishWarn},
				Threshold:      0.7,
				MinLength:      10,
			},
			RepeatedText: RepeatedTextConfig{
				DetectorConfig:      DetectorConfig{Enabled: true, Punishment: PunishWarn},
				SimilarityThreshold: 0.8,
				History:             5,
			},
			BadWords: BadWordsConfig{
				DetectorConfig: DetectorConfig{Enabled: true, Punishment: PunishWarn},
			},
			InviteLinks: InviteLinksConfig{
				DetectorConfig: DetectorConfig{Enabled: true, Punishment: PunishWarn},
			},
		},
		Moderation: ModerationConfig{
			MaxWarnings:             3,
			AutoPunishOnMaxWarnings: true,
			DMOnPunishment:          true,
			BanDeleteMessageDays:    1,
		},
	}
}

// Decodes each detector section separately, so one malformed section only disables that detector.
func (a *AutomodConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("automod config: expected a mapping, got %s", value.Tag)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		node := value.Content[i+1]
		var err error
		switch key {
		case "enabled":
			err = node.Decode(&a.Enabled)
		case "spam":
			tmp := a.Spam
			if err = node.Decode(&tmp); err == nil {
				a.Spam = tmp
			} else {
				a.Spam.Enabled = false
			}
		case "caps":
			tmp := a.Caps
			if err = node.Decode(&tmp); err == nil {
				a.Caps = tmp
			} else {
				a.Caps.Enabled = false
			}
		case "repeated_text":
			tmp := a.RepeatedText
			if err = node.Decode(&tmp); err == nil {
				a.RepeatedText = tmp
			} else {
				a.RepeatedText.Enabled = false
			}
		case "bad_words":
			tmp := a.BadWords
			if err = node.Decode(&tmp); err == nil {
				a.BadWords = tmp
			} else {
				a.BadWords.Enabled = false
			}
		case "invite_links":
			tmp := a.InviteLinks
			if err = node.Decode(&tmp); err == nil {
				a.InviteLinks = tmp
			} else {
				a.InviteLinks.Enabled = false
			}
		default:
			a.problems = append(a.problems, fmt.Sprintf("automod.%s: unknown section, ignored", key))
			continue
		}
		if err != nil {
			a.problems = append(a.problems, fmt.Sprintf("automod.%s: %v (detector disabled)", key, err))
		}
	}
	return nil
}

// Parses YAML configuration on top of the defaults, then validates.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Problems = append(cfg.Problems, cfg.Automod.problems...)
	cfg.Automod.problems = nil
	cfg.Validate()
	return cfg, nil
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(raw)
}

// Replaces out-of-range values with defaults, recording each substitution in Problems.
func (c *Config) Validate() {
	def := Default()
	note := func(format string, args ...any) {
		c.Problems = append(c.Problems, fmt.Sprintf(format, args...))
	}
	checkDetector := func(name string, d *DetectorConfig, defaults DetectorConfig) {
		d.Punishment = strings.ToLower(strings.TrimSpace(d.Punishment))
		if !validPunishment(d.Punishment) {
			note("automod.%s.punishment: unknown kind %q, using %q", name, d.Punishment, defaults.Punishment)
			d.Punishment = defaults.Punishment
		}
		if d.PunishmentDuration < 0 {
			note("automod.%s.punishment_duration: negative, using default", name)
			d.PunishmentDuration = defaults.PunishmentDuration
		}
	}

	a := &c.Automod
	checkDetector("spam", &a.Spam.DetectorConfig, def.Automod.Spam.DetectorConfig)
	checkDetector("caps", &a.Caps.DetectorConfig, def.Automod.Caps.DetectorConfig)
	checkDetector("repeated_text", &a.RepeatedText.DetectorConfig, def.Automod.RepeatedText.DetectorConfig)
	checkDetector("bad_words", &a.BadWords.DetectorConfig, def.Automod.BadWords.DetectorConfig)
	checkDetector("invite_links", &a.InviteLinks.DetectorConfig, def.Automod.InviteLinks.DetectorConfig)

	if a.Spam.MaxMessages < 1 {
		note("automod.spam.max_messages: must be at least 1, using %d", def.Automod.Spam.MaxMessages)
		a.Spam.MaxMessages = def.Automod.Spam.MaxMessages
	}
	if a.Spam.TimeWindow < 1 {
		note("automod.spam.time_window: must be at least 1, using %d", def.Automod.Spam.TimeWindow)
		a.Spam.TimeWindow = def.Automod.Spam.TimeWindow
	}
	if a.Caps.Threshold <= 0 || a.Caps.Threshold > 1 {
		note("automod.caps.threshold: must be in (0,1], using %v", def.Automod.Caps.Threshold)
		a.Caps.Threshold = def.Automod.Caps.Threshold
	}
	if a.Caps.MinLength < 0 {
		note("automod.caps.min_length: negative, using %d", def.Automod.Caps.MinLength)
		a.Caps.MinLength = def.Automod.Caps.MinLength
	}
	if a.RepeatedText.SimilarityThreshold <= 0 || a.RepeatedText.SimilarityThreshold > 1 {
		note("automod.repeated_text.similarity_threshold: must be in (0,1], using %v", def.Automod.RepeatedText.SimilarityThreshold)
		a.RepeatedText.SimilarityThreshold = def.Automod.RepeatedText.SimilarityThreshold
	}
	if a.RepeatedText.History < 1 || a.RepeatedText.History > 50 {
		note("automod.repeated_text.history: must be between 1 and 50, using %d", def.Automod.RepeatedText.History)
		a.RepeatedText.History = def.Automod.RepeatedText.History
	}
	if a.RepeatedText.MinLength < 0 {
		a.RepeatedText.MinLength = 0
	}
	a.BadWords.Words = helpers.DedupeStrings(a.BadWords.Words)

	m := &c.Moderation
	if m.MaxWarnings < 1 {
		note("moderation.max_warnings: must be at least 1, using %d", def.Moderation.MaxWarnings)
		m.MaxWarnings = def.Moderation.MaxWarnings
	}
	if m.BanDeleteMessageDays < 0 || m.BanDeleteMessageDays > 7 {
		note("moderation.ban_delete_message_days: must be between 0 and 7, using %d", def.Moderation.BanDeleteMessageDays)
		m.BanDeleteMessageDays = def.Moderation.BanDeleteMessageDays
	}
}
