package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/prefs"
	"github.com/gosuda/drawchat/receipts"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(id, author int64, offset time.Duration, text string) *models.Message {
	m := &models.Message{
		ID:         id,
		AuthorID:   author,
		AuthorName: "user",
		Text:       text,
		Timestamp:  models.Millis{Time: base.Add(offset)},
	}
	m.Normalize()
	return m
}

func TestShowHeader(t *testing.T) {
	msgs := []*models.Message{
		at(1, 1, 0, "a"),
		at(2, 1, 30*time.Second, "b"),
		at(3, 2, 40*time.Second, "c"),
		at(4, 2, 100*time.Second, "d"),
		at(5, 2, 159*time.Second, "e"),
	}

	m := Build(Input{Messages: msgs, Now: base.Add(time.Hour)})

	var headers []bool
	for _, r := range m.Rows {
		headers = append(headers, r.ShowHeader)
	}
	assert.Equal(t, []bool{true, false, true, true, false}, headers)
}

func TestBuild_SideAndMine(t *testing.T) {
	msgs := []*models.Message{at(1, 7, 0, "mine"), at(2, 8, 0, "theirs")}

	both := Build(Input{MeID: 7, Messages: msgs, Side: prefs.SideBoth})
	assert.True(t, both.Rows[0].Mine)
	assert.True(t, both.Rows[0].AlignRight)
	assert.False(t, both.Rows[1].AlignRight)

	left := Build(Input{MeID: 7, Messages: msgs, Side: prefs.SideLeft})
	assert.True(t, left.Rows[0].Mine)
	assert.False(t, left.Rows[0].AlignRight)
}

func TestBuild_ReadersAndReply(t *testing.T) {
	agg := receipts.NewAggregator()
	id := int64(2)
	agg.SetState([]models.ReadWatermark{
		{UserID: 7, Name: "me", LastReadMessageID: &id},
		{UserID: 8, Name: "bob", LastReadMessageID: &id},
	})
	reply := at(2, 7, time.Second, "answer")
	reply.Reply = &models.ReplyRef{MessageID: 1, AuthorName: "<b>ann</b>", Text: "question", Deleted: true}

	m := Build(Input{MeID: 7, Messages: []*models.Message{at(1, 8, 0, "question"), reply}, Receipts: agg})

	assert.Equal(t, 1, m.Rows[0].Readers, "author excluded")
	assert.Equal(t, []string{"me"}, m.Rows[0].ReaderNames)
	assert.Equal(t, []string{"bob"}, m.Rows[1].ReaderNames)
	require.NotNil(t, m.Rows[1].Reply)
	assert.True(t, m.Rows[1].Reply.Deleted)
	assert.Equal(t, "ann", m.Rows[1].Reply.Author)
}

func TestBuild_Reactions(t *testing.T) {
	msg := at(1, 1, 0, "hi")
	msg.Reactions = map[string]int{"🔥": 1, "👍": 2, "🙃": 1, "😢": 0}
	msg.ReactedUsers = map[string][]int64{"👍": {3, 7}, "🔥": {3}}
	msg.ReactedUserNames = map[string][]string{"👍": {"cid", "me"}}

	row := Build(Input{MeID: 7, Messages: []*models.Message{msg}}).Rows[0]

	require.Len(t, row.Reactions, 3)
	assert.Equal(t, Reaction{Emoji: "👍", Count: 2, Mine: true, Users: []string{"cid", "me"}}, row.Reactions[0])
	assert.Equal(t, "🔥", row.Reactions[1].Emoji)
	assert.False(t, row.Reactions[1].Mine)
	assert.Equal(t, "🙃", row.Reactions[2].Emoji)
}

func TestBuild_SanitizesAndRelativeTime(t *testing.T) {
	msg := at(1, 1, 0, `hello <script>alert(1)</script><b>world</b>`)
	msg.AuthorName = `<img src=x onerror=alert(1)>`

	row := Build(Input{Messages: []*models.Message{msg}, Now: base.Add(3 * time.Minute)}).Rows[0]

	assert.Equal(t, "hello <b>world</b>", row.Text)
	assert.Equal(t, "anon", row.Author)
	assert.Equal(t, "3 minutes ago", row.Relative)
}

func TestOnlyEmoji(t *testing.T) {
	assert.True(t, OnlyEmoji("👍"))
	assert.True(t, OnlyEmoji(" 🔥 "))
	assert.False(t, OnlyEmoji("👍👍"))
	assert.False(t, OnlyEmoji("ok 👍"))
	assert.False(t, OnlyEmoji(""))
}

func TestSanitizeName_Truncates(t *testing.T) {
	assert.Equal(t, "abcdefghijklmnopqrstuvwx", SanitizeName("abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "anon", SanitizeName("   "))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "a & b bold", PlainText("a &amp; b <b>bold</b>"))
	assert.Equal(t, "&lt;b&gt; stays text", PlainText("&amp;lt;b&amp;gt; stays text"))
	assert.Equal(t, "<b> typed", PlainText("&lt;b&gt; typed"))
}

func TestFollow_IndicatorOnlyWhenAway(t *testing.T) {
	f := NewFollow()
	assert.False(t, f.Rows(0))

	assert.True(t, f.Rows(1), "near bottom follows")
	assert.False(t, f.Indicator())

	f.Scrolled(receipts.BottomGapPx + 100)
	assert.False(t, f.Rows(2))
	assert.True(t, f.Indicator())

	assert.False(t, f.Rows(2), "no append, no change")
	assert.True(t, f.Indicator())

	f.Scrolled(0)
	assert.False(t, f.Indicator())
}

func TestFollow_Dismiss(t *testing.T) {
	f := NewFollow()
	f.Scrolled(500)
	f.Rows(3)
	require.True(t, f.Indicator())

	f.Dismiss()

	assert.False(t, f.Indicator())
	assert.True(t, f.NearBottom())
}

func TestFollow_PrependIsNotNew(t *testing.T) {
	f := NewFollow()
	f.Rows(50)
	f.Scrolled(900)

	f.Prepended(100)

	assert.False(t, f.Indicator())
	assert.False(t, f.Rows(100))
}

func TestFollow_DeleteThenAppendIsNew(t *testing.T) {
	f := NewFollow()
	f.Rows(3)
	f.Scrolled(900)

	f.Shrunk(2)
	assert.False(t, f.Indicator())

	assert.False(t, f.Rows(3))
	assert.True(t, f.Indicator())

	f.Shrunk(5)
	f.Scrolled(0)
	assert.True(t, f.Rows(4), "a larger count is not a shrink")
}
