package permissions

import (
	"github.com/guildwarden/warden/platform"
)

func ActorFromMember(g *platform.Guild, m *platform.Member) Actor {
	return Actor{
		UserID:          m.UserID,
		Roles:           m.Roles,
		Permissions:     g.MemberPermissions(m),
		TopRolePosition: g.TopRolePosition(m),
		IsGuildOwner:    g.OwnerID == m.UserID,
	}
}

func TargetFromMember(g *platform.Guild, m *platform.Member) Target {
	return Target{
		UserID:          m.UserID,
		TopRolePosition: g.TopRolePosition(m),
		IsGuildOwner:    g.OwnerID == m.UserID,
	}
}
