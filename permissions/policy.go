package permissions

import (
	"fmt"
	"strings"

	"github.com/guildwarden/warden/config"

	"github.com/bwmarrin/discordgo"
)

type Level int

const (
	LevelUser Level = iota
	LevelHelper
	LevelModerator
	LevelAdmin
	LevelOwner
)

func (l Level) String() string {
	switch l {
	case LevelUser:
		return "user"
	case LevelHelper:
		return "helper"
	case LevelModerator:
		return "moderator"
	case LevelAdmin:
		return "admin"
	case LevelOwner:
		return "owner"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "everyone":
		return LevelUser, nil
	case "helper":
		return LevelHelper, nil
	case "moderator", "mod":
		return LevelModerator, nil
	case "admin":
		return LevelAdmin, nil
	case "owner":
		return LevelOwner, nil
	}
	return LevelUser, fmt.Errorf("unknown permission level: %q", s)
}

// Minimum levels for commands which are not overridden in configuration. Commands missing from here and from configuration require admin.
var DefaultCommandLevels = map[string]Level{
	"warn":        LevelHelper,
	"unwarn":      LevelHelper,
	"warnings":    LevelHelper,
	"history":     LevelHelper,
	"timeout":     LevelModerator,
	"untimeout":   LevelModerator,
	"kick":        LevelModerator,
	"ban":         LevelModerator,
	"unban":       LevelModerator,
	"purge":       LevelModerator,
	"lock":        LevelModerator,
	"unlock":      LevelModerator,
	"stafflogs":   LevelModerator,
	"automodlogs": LevelModerator,
	"reload":      LevelAdmin,
}

// The member invoking a command.
type Actor struct {
	UserID string
	Roles  []string
	// effective guild permission bits
	Permissions     int64
	TopRolePosition int
	IsGuildOwner    bool
}

// The member a command acts upon.
type Target struct {
	UserID          string
	TopRolePosition int
	IsGuildOwner    bool
}

// Decides which members may run which commands against which targets. Built from configuration; immutable once built.
type Policy struct {
	owners    map[string]bool
	admin     map[string]bool
	moderator map[string]bool
	helper    map[string]bool
	commands  map[string]Level

	// configuration entries which could not be used
	Problems []string
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func NewPolicy(cfg config.PermissionsConfig) *Policy {
	p := &Policy{
		owners:    toSet(cfg.Owners),
		admin:     toSet(cfg.AdminRoles),
		moderator: toSet(cfg.ModeratorRoles),
		helper:    toSet(cfg.HelperRoles),
		commands:  make(map[string]Level, len(DefaultCommandLevels)),
	}
	for cmd, lvl := range DefaultCommandLevels {
		p.commands[cmd] = lvl
	}
	for cmd, name := range cfg.Commands {
		lvl, err := ParseLevel(name)
		if err != nil {
			p.Problems = append(p.Problems, fmt.Sprintf("permissions.commands.%s: %v", cmd, err))
			continue
		}
		p.commands[strings.ToLower(cmd)] = lvl
	}
	return p
}

func (p *Policy) hasAny(roles []string, set map[string]bool) bool {
	for _, r := range roles {
		if set[r] {
			return true
		}
	}
	return false
}

// Highest level the actor holds.
func (p *Policy) LevelOf(a Actor) Level {
	switch {
	case p.owners[a.UserID]:
		return LevelOwner
	case a.IsGuildOwner, a.Permissions&discordgo.PermissionAdministrator != 0, p.hasAny(a.Roles, p.admin):
		return LevelAdmin
	case p.hasAny(a.Roles, p.moderator):
		return LevelModerator
	case p.hasAny(a.Roles, p.helper):
		return LevelHelper
	default:
		return LevelUser
	}
}

func (p *Policy) Required(command string) Level {
	lvl, ok := p.commands[strings.ToLower(command)]
	if !ok {
		return LevelAdmin
	}
	return lvl
}

// Members at helper level or above are exempt from auto-moderation.
func (p *Policy) IsStaff(a Actor) bool {
	return p.LevelOf(a) >= LevelHelper
}

// Whether the actor may act on the target, based on role hierarchy.
func (p *Policy) CanTarget(a Actor, t Target) bool {
	if a.UserID == t.UserID {
		return false
	}
	if p.owners[a.UserID] {
		return true
	}
	if t.IsGuildOwner {
		return false
	}
	if a.IsGuildOwner {
		return true
	}
	return a.TopRolePosition > t.TopRolePosition
}

// Pre-condition check run by the command dispatcher: the actor holds the command's required level and, when the command has a target member, outranks that member.
func (p *Policy) Authorize(actor Actor, command string, target *Target) bool {
	if p.LevelOf(actor) < p.Required(command) {
		return false
	}
	if target != nil && !p.CanTarget(actor, *target) {
		return false
	}
	return true
}
