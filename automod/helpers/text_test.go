package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapsRatio(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		s   string
		out float64
	}{
		{s: "", out: 0},
		{s: "ABC", out: 1.0},
		{s: "abc123", out: 0},
		{s: "1234 !!", out: 0},
		{s: "AbCd", out: 0.5},
		{s: "HELLO world", out: 0.5},
		{s: "ÉCOLE", out: 1.0},
	}

	for _, fix := range fixtures {
		assert.InDelta(fix.out, CapsRatio(fix.s), 0.0001, fix.s)
	}

	for _, s := range []string{"x", "Mixed CASE text 123", "ÄÖü", "🙂🙂 A"} {
		r := CapsRatio(s)
		assert.GreaterOrEqual(r, 0.0)
		assert.LessOrEqual(r, 1.0)
	}
}

func TestTextSimilarity(t *testing.T) {
	assert := assert.New(t)

	for _, s := range []string{"a", "hello world", "buy cheap stuff now", "日本語"} {
		assert.Equal(1.0, TextSimilarity(s, s))
	}
	assert.Equal(0.0, TextSimilarity("", "x"))
	assert.Equal(0.0, TextSimilarity("x", ""))
	assert.Equal(0.0, TextSimilarity("", ""))

	// shorter is a prefix of longer
	assert.InDelta(0.5, TextSimilarity("abcd", "ab"), 0.0001)
	// argument order doesn't matter
	assert.Equal(TextSimilarity("hello there", "hello world"), TextSimilarity("hello world", "hello there"))
	// shifted by one character, nearly everything misses
	assert.Less(TextSimilarity("spam spam", "xspam spam"), 0.5)
}

func TestExtractInviteCode(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		s    string
		code string
		ok   bool
	}{
		{s: "join us at discord.gg/abc123 now", code: "abc123", ok: true},
		{s: "https://discord.com/invite/XyZ789", code: "XyZ789", ok: true},
		{s: "https://discordapp.com/invite/old-code", code: "old-code", ok: true},
		{s: "HTTPS://DISCORD.GG/Shout", code: "Shout", ok: true},
		{s: "no links here", ok: false},
		{s: "https://example.com/invite/abc", ok: false},
		{s: "discord.gg/", ok: false},
	}

	for _, fix := range fixtures {
		code, ok := ExtractInviteCode(fix.s)
		assert.Equal(fix.ok, ok, fix.s)
		assert.Equal(fix.code, code, fix.s)
	}
}

func TestContainsWord(t *testing.T) {
	assert := assert.New(t)

	words := []string{"", "badword", "Worse"}

	w, ok := ContainsWord("this has a BADWORD in it", words)
	assert.True(ok)
	assert.Equal("badword", w)

	w, ok = ContainsWord("even worse things", words)
	assert.True(ok)
	assert.Equal("Worse", w)

	_, ok = ContainsWord("perfectly fine", words)
	assert.False(ok)

	_, ok = ContainsWord("anything", nil)
	assert.False(ok)
}

func TestCleanContent(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("hi @user-123 and @user-456", CleanContent("hi <@123> and <@!456>"))
	assert.Equal("see #channel-789 @role-42", CleanContent("see <#789> <@&42>"))
	assert.NotContains(CleanContent("@everyone look"), "@everyone")
	assert.Equal("plain text", CleanContent("plain text"))
}

func TestTruncateContent(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("short", TruncateContent("short", 10))
	assert.Equal("abcdefg...", TruncateContent(strings.Repeat("abcdefghij", 3), 10))
	assert.Equal("日本", TruncateContent("日本語です", 2))
	assert.Equal("unchanged", TruncateContent("unchanged", 0))
}

func TestHashOfString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(HashOfString("same"), HashOfString("same"))
	assert.NotEqual(HashOfString("one"), HashOfString("two"))
	assert.Len(HashOfString("anything"), 16)
}
