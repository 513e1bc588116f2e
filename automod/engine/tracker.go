package engine

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	// minimum number of recent message timestamps kept per member
	TrackerTimestampCapacity = 10

	// idle members are dropped from the tracker after this long
	TrackerIdleTTL = 10 * time.Minute

	TrackerMaxMembers = 100_000
)

type recentMessage struct {
	id   string
	text string
}

type memberActivity struct {
	mu         sync.Mutex
	timestamps []time.Time
	// channel ID to recent messages, oldest first
	recent map[string][]recentMessage
}

// In-memory sliding-window state for the spam and repeated-text rules, keyed by guild and member.
//
// State is not persisted; it is lost on restart, which only resets short windows.
type Tracker struct {
	mu      sync.Mutex
	members *expirable.LRU[string, *memberActivity]
}

func NewTracker() *Tracker {
	return &Tracker{
		members: expirable.NewLRU[string, *memberActivity](TrackerMaxMembers, nil, TrackerIdleTTL),
	}
}

func (t *Tracker) member(guildID, userID string) *memberActivity {
	key := guildID + "/" + userID
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.members.Get(key)
	if !ok {
		m = &memberActivity{recent: make(map[string][]recentMessage)}
	}
	// re-adding refreshes the idle expiry
	t.members.Add(key, m)
	return m
}

// Records a message at the given time, and returns how many recorded messages (including this one) fall within the window ending at that time.
func (t *Tracker) RecordMessage(guildID, userID string, at time.Time, window time.Duration, capacity int) int {
	if capacity < TrackerTimestampCapacity {
		capacity = TrackerTimestampCapacity
	}
	m := t.member(guildID, userID)
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := at.Add(-window)
	kept := m.timestamps[:0]
	for _, ts := range m.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, at)
	if len(kept) > capacity {
		kept = kept[len(kept)-capacity:]
	}
	m.timestamps = kept
	return len(kept)
}

// Clears the member's message timestamps, so the next message starts a fresh count.
func (t *Tracker) ResetMessages(guildID, userID string) {
	m := t.member(guildID, userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timestamps = nil
}

// Records the message content in the member's queue for the channel, and returns a copy of the text of the other messages in the queue.
//
// An edit (a message ID already in the queue) replaces that entry in place; a message is never compared against its own earlier text.
func (t *Tracker) PushContent(guildID, userID, channelID, messageID, content string, capacity int) []string {
	if capacity < 1 {
		capacity = 1
	}
	m := t.member(guildID, userID)
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.recent[channelID]
	out := make([]string, 0, len(queue))
	edited := false
	for i, rm := range queue {
		if rm.id == messageID {
			queue[i].text = content
			edited = true
			continue
		}
		out = append(out, rm.text)
	}
	if !edited {
		queue = append(queue, recentMessage{id: messageID, text: content})
		if len(queue) > capacity {
			queue = queue[len(queue)-capacity:]
		}
	}
	m.recent[channelID] = queue
	return out
}
