package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// In-memory Client implementation, for tests and local development.
//
// Every call is appended to Calls (as "op guild/user" style strings). Errors can be injected per operation name through FailWith.
type MockClient struct {
	mu sync.Mutex

	Guilds   map[string]*Guild
	Members  map[string]*Member
	Bans     map[string]*Ban
	Invites  map[string]*Invite
	Messages map[string]bool
	// channel ID to "sending denied" state
	Locked  map[string]bool
	Calls   []string
	Notices []string
	// channel ID to messages posted there
	Sent map[string][]string

	failures map[string]error
}

var _ Client = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		Guilds:   make(map[string]*Guild),
		Members:  make(map[string]*Member),
		Bans:     make(map[string]*Ban),
		Invites:  make(map[string]*Invite),
		Messages: make(map[string]bool),
		Locked:   make(map[string]bool),
		Sent:     make(map[string][]string),
		failures: make(map[string]error),
	}
}

func memberKey(guildID, userID string) string {
	return guildID + "/" + userID
}

func (m *MockClient) AddGuild(g Guild) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Guilds[g.ID] = &g
}

func (m *MockClient) AddMember(mem Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Members[memberKey(mem.GuildID, mem.UserID)] = &mem
}

func (m *MockClient) AddMessage(channelID, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages[channelID+"/"+messageID] = true
}

func (m *MockClient) AddInvite(code, guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invites[code] = &Invite{Code: code, GuildID: guildID}
}

func (m *MockClient) AddBan(guildID, userID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Bans[memberKey(guildID, userID)] = &Ban{GuildID: guildID, UserID: userID, Reason: reason}
}

// Makes every subsequent call of the named operation (eg, "timeout", "ban") return err. A nil err clears the failure.
func (m *MockClient) FailWith(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Number of recorded calls of the named operation.
func (m *MockClient) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if len(c) >= len(op) && c[:len(op)] == op && (len(c) == len(op) || c[len(op)] == ' ') {
			n++
		}
	}
	return n
}

func (m *MockClient) HasMessage(channelID, messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Messages[channelID+"/"+messageID]
}

func (m *MockClient) Member(guildID, userID string) *Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.Members[memberKey(guildID, userID)]
	if !ok {
		return nil
	}
	cp := *mem
	return &cp
}

// records the call and returns any injected failure. caller must hold the lock.
func (m *MockClient) record(op, args string) error {
	m.Calls = append(m.Calls, op+" "+args)
	return m.failures[op]
}

func (m *MockClient) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("get_guild", guildID); err != nil {
		return nil, err
	}
	g, ok := m.Guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("%w: guild %s", ErrNotFound, guildID)
	}
	cp := *g
	return &cp, nil
}

func (m *MockClient) GetMember(ctx context.Context, guildID, userID string) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("get_member", memberKey(guildID, userID)); err != nil {
		return nil, err
	}
	mem, ok := m.Members[memberKey(guildID, userID)]
	if !ok {
		return nil, fmt.Errorf("%w: member %s", ErrNotFound, memberKey(guildID, userID))
	}
	cp := *mem
	return &cp, nil
}

func (m *MockClient) Timeout(ctx context.Context, guildID, userID string, until *time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("timeout", memberKey(guildID, userID)); err != nil {
		return err
	}
	mem, ok := m.Members[memberKey(guildID, userID)]
	if !ok {
		return fmt.Errorf("%w: member %s", ErrNotFound, memberKey(guildID, userID))
	}
	mem.TimedOutUntil = until
	return nil
}

func (m *MockClient) Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ban", memberKey(guildID, userID)); err != nil {
		return err
	}
	m.Bans[memberKey(guildID, userID)] = &Ban{GuildID: guildID, UserID: userID, Reason: reason}
	delete(m.Members, memberKey(guildID, userID))
	return nil
}

func (m *MockClient) Unban(ctx context.Context, guildID, userID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("unban", memberKey(guildID, userID)); err != nil {
		return err
	}
	if _, ok := m.Bans[memberKey(guildID, userID)]; !ok {
		return fmt.Errorf("%w: ban %s", ErrNotFound, memberKey(guildID, userID))
	}
	delete(m.Bans, memberKey(guildID, userID))
	return nil
}

func (m *MockClient) Kick(ctx context.Context, guildID, userID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("kick", memberKey(guildID, userID)); err != nil {
		return err
	}
	if _, ok := m.Members[memberKey(guildID, userID)]; !ok {
		return fmt.Errorf("%w: member %s", ErrNotFound, memberKey(guildID, userID))
	}
	delete(m.Members, memberKey(guildID, userID))
	return nil
}

func (m *MockClient) FetchBan(ctx context.Context, guildID, userID string) (*Ban, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("fetch_ban", memberKey(guildID, userID)); err != nil {
		return nil, err
	}
	b, ok := m.Bans[memberKey(guildID, userID)]
	if !ok {
		return nil, fmt.Errorf("%w: ban %s", ErrNotFound, memberKey(guildID, userID))
	}
	cp := *b
	return &cp, nil
}

func (m *MockClient) ResolveInvite(ctx context.Context, code string) (*Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("resolve_invite", code); err != nil {
		return nil, err
	}
	inv, ok := m.Invites[code]
	if !ok {
		return nil, fmt.Errorf("%w: invite %s", ErrNotFound, code)
	}
	cp := *inv
	return &cp, nil
}

func (m *MockClient) DeleteMessage(ctx context.Context, channelID, messageID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete_message", channelID+"/"+messageID); err != nil {
		return err
	}
	if !m.Messages[channelID+"/"+messageID] {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	delete(m.Messages, channelID+"/"+messageID)
	return nil
}

// Ignores userID: the mock does not track message authors.
func (m *MockClient) PurgeMessages(ctx context.Context, channelID string, limit int, userID, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("purge", channelID); err != nil {
		return 0, err
	}
	n := 0
	prefix := channelID + "/"
	for k := range m.Messages {
		if n >= limit {
			break
		}
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.Messages, k)
			n++
		}
	}
	return n, nil
}

func (m *MockClient) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("add_role", memberKey(guildID, userID)); err != nil {
		return err
	}
	mem, ok := m.Members[memberKey(guildID, userID)]
	if !ok {
		return fmt.Errorf("%w: member %s", ErrNotFound, memberKey(guildID, userID))
	}
	if !mem.HasRole(roleID) {
		mem.Roles = append(mem.Roles, roleID)
	}
	return nil
}

func (m *MockClient) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("remove_role", memberKey(guildID, userID)); err != nil {
		return err
	}
	mem, ok := m.Members[memberKey(guildID, userID)]
	if !ok {
		return fmt.Errorf("%w: member %s", ErrNotFound, memberKey(guildID, userID))
	}
	var roles []string
	for _, r := range mem.Roles {
		if r != roleID {
			roles = append(roles, r)
		}
	}
	mem.Roles = roles
	return nil
}

func (m *MockClient) SetChannelSendPermission(ctx context.Context, guildID, channelID string, allow bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("channel_send", channelID); err != nil {
		return err
	}
	m.Locked[channelID] = !allow
	return nil
}

func (m *MockClient) NotifyUser(ctx context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("notify", userID); err != nil {
		return err
	}
	m.Notices = append(m.Notices, text)
	return nil
}

func (m *MockClient) SendMessage(ctx context.Context, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("send", channelID); err != nil {
		return err
	}
	m.Sent[channelID] = append(m.Sent[channelID], text)
	return nil
}
