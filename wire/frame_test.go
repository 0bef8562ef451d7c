package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/drawchat/models"
)

func frame(event, data string) *Frame {
	return &Frame{Event: event, Data: json.RawMessage(data)}
}

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":"message","data":{"id":1},"ack":3}`))
	require.NoError(t, err)
	assert.Equal(t, EventMessage, f.Event)
	assert.Equal(t, uint64(3), f.Ack)

	_, err = ParseFrame([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseFrame([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewFrameRoundTripsPayload(t *testing.T) {
	f, err := NewFrame(EventJoin, 0, JoinRequest{RoomID: "lobby"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"roomId":"lobby"}`, string(f.Data))

	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"join","data":{"roomId":"lobby"}}`, string(raw))
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := Decode(frame("presence:ping", `{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecode_HistoryArrayAndObject(t *testing.T) {
	ev, err := Decode(frame(EventHistory, `[{"id":2,"text":"b"},{"id":1,"text":"a"}]`))
	require.NoError(t, err)
	h := ev.(History)
	assert.Equal(t, EventHistory, h.EventName())
	require.Len(t, h.Messages, 2)
	assert.Nil(t, h.HasMore)

	ev, err = Decode(frame(EventHistoryBefore, `{"messages":[{"id":3}],"hasMore":false}`))
	require.NoError(t, err)
	h = ev.(History)
	assert.Equal(t, EventHistoryBefore, h.EventName())
	require.Len(t, h.Messages, 1)
	require.NotNil(t, h.HasMore)
	assert.False(t, *h.HasMore)
}

func TestDecode_HistorySkipsInvalidMessages(t *testing.T) {
	ev, err := Decode(frame(EventHistoryLatest, `[{"id":0},{"text":"no id"},"junk",{"id":4}]`))
	require.NoError(t, err)
	h := ev.(History)
	require.Len(t, h.Messages, 1)
	assert.Equal(t, int64(4), h.Messages[0].ID)
	assert.NotNil(t, h.Messages[0].Reactions)
	assert.Equal(t, models.KindText, h.Messages[0].Kind)
}

func TestDecode_HistoryEmpty(t *testing.T) {
	ev, err := Decode(frame(EventHistoryLatest, `null`))
	require.NoError(t, err)
	assert.Empty(t, ev.(History).Messages)
}

func TestDecode_MessageTimestampForms(t *testing.T) {
	for _, ts := range []string{`1700000000000`, `"1700000000000"`, `"2023-11-14T22:13:20Z"`} {
		ev, err := Decode(frame(EventMessage, `{"id":9,"ts":`+ts+`}`))
		require.NoError(t, err, ts)
		assert.Equal(t, int64(1700000000000), ev.(MessageEvent).Message.Timestamp.Millis(), ts)
	}
}

func TestDecode_MessageWithoutID(t *testing.T) {
	_, err := Decode(frame(EventMessage, `{"text":"hi"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_ReadStateForms(t *testing.T) {
	ev, err := Decode(frame(EventReadState, `[{"userId":1,"lastReadMessageId":4}]`))
	require.NoError(t, err)
	rows := ev.(ReadState).Rows
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), *rows[0].LastReadMessageID)

	ev, err = Decode(frame(EventReadState, `{"readState":[{"userId":2,"lastReadMessageId":null}]}`))
	require.NoError(t, err)
	rows = ev.(ReadState).Rows
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].LastReadMessageID)
}

func TestDecode_ReactionUpdateDefaultsMaps(t *testing.T) {
	ev, err := Decode(frame(EventReactionUpdate, `{"messageId":5}`))
	require.NoError(t, err)
	ru := ev.(ReactionUpdate)
	assert.NotNil(t, ru.Reactions)
	assert.NotNil(t, ru.ReactedUsers)
}

func TestDecode_StrokeMoveDropsMalformedPoints(t *testing.T) {
	ev, err := Decode(frame(EventStrokeMove, `{
		"canvasRoomId":"c1","strokeId":"s1",
		"points":[{"nx":0.2,"ny":0.2},{"nx":"x","ny":0.3},{"nx":"0.3","ny":0.1},{"ny":0.5},{"nx":1.7,"ny":-2}]
	}`))
	require.NoError(t, err)
	mv := ev.(StrokeMove)
	assert.Equal(t, []models.Point{
		{NX: 0.2, NY: 0.2},
		{NX: 0.3, NY: 0.1},
		{NX: 1, NY: 0},
	}, mv.Points)
}

func TestDecode_StrokeMoveNonArrayPoints(t *testing.T) {
	ev, err := Decode(frame(EventStrokeMove, `{"canvasRoomId":"c1","strokeId":"s1","points":"nope"}`))
	require.NoError(t, err)
	assert.Empty(t, ev.(StrokeMove).Points)
}

func TestDecode_StrokeStart(t *testing.T) {
	ev, err := Decode(frame(EventStrokeStart, `{"canvasRoomId":"c1","strokeId":"s1","color":"#fff","width":4,"composite":"source-over","point":{"nx":0.1,"ny":0.1}}`))
	require.NoError(t, err)
	st := ev.(StrokeStart)
	require.NotNil(t, st.Point)
	assert.Equal(t, models.Point{NX: 0.1, NY: 0.1}, *st.Point)

	ev, err = Decode(frame(EventStrokeStart, `{"canvasRoomId":"c1","strokeId":"s2","point":{"nx":"bad"}}`))
	require.NoError(t, err)
	assert.Nil(t, ev.(StrokeStart).Point)

	_, err = Decode(frame(EventStrokeStart, `{"canvasRoomId":"c1"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_StrokeEndRequiresID(t *testing.T) {
	_, err := Decode(frame(EventStrokeEnd, `{"canvasRoomId":"c1"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_PermissionUpdatedNumericFlag(t *testing.T) {
	ev, err := Decode(frame(EventPermissionUpdated, `{"canvasRoomId":"c1","targetUserId":3,"canDraw":1}`))
	require.NoError(t, err)
	pu := ev.(PermissionUpdated)
	assert.True(t, bool(pu.CanDraw))
	assert.Equal(t, int64(3), pu.TargetUserID)
}

func TestDecode_MissingDataIsMalformed(t *testing.T) {
	_, err := Decode(&Frame{Event: EventMessageDeleted})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseStoredPoints(t *testing.T) {
	assert.Equal(t, []models.Point{{NX: 0.5, NY: 0.5, T: 10}}, ParseStoredPoints(`[{"nx":0.5,"ny":0.5,"t":10},{"nx":null,"ny":1}]`))
	assert.Empty(t, ParseStoredPoints(""))
	assert.Empty(t, ParseStoredPoints("{broken"))
}
