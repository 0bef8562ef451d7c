package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Message kinds.
const (
	KindText         = "text"
	KindCanvasInvite = "canvas_invite"
)

// Message is one chat message as held by the client.
type Message struct {
	ID               int64               `json:"id"`
	RoomID           string              `json:"roomId"`
	Text             string              `json:"text"`
	Timestamp        Millis              `json:"ts"`
	AuthorID         int64               `json:"userId"`
	AuthorName       string              `json:"name"`
	Avatar           string              `json:"avatarUrl,omitempty"`
	Reactions        map[string]int      `json:"reactions"`
	ReactedUsers     map[string][]int64  `json:"reactedUsers"`
	ReactedUserNames map[string][]string `json:"reactedUserNames,omitempty"`
	Reply            *ReplyRef           `json:"reply,omitempty"`
	Kind             string              `json:"type,omitempty"`
	Meta             *CanvasInvite       `json:"meta,omitempty"`
}

// ReplyRef is the denormalized snapshot of the message being replied to.
type ReplyRef struct {
	MessageID  int64  `json:"messageId"`
	AuthorID   int64  `json:"userId"`
	AuthorName string `json:"name"`
	Text       string `json:"text"`
	Timestamp  Millis `json:"ts"`
	Deleted    Flag   `json:"deleted"`
}

// CanvasInvite is the meta payload of a canvas_invite message.
type CanvasInvite struct {
	CanvasRoomID   string  `json:"canvasRoomId"`
	InviteID       string  `json:"inviteId"`
	InvitedUserIDs []int64 `json:"invitedUserIds"`
	Title          string  `json:"title"`
}

// Normalize fills absent maps and the default kind so consumers never see nil.
func (m *Message) Normalize() {
	if m.Reactions == nil {
		m.Reactions = map[string]int{}
	}
	if m.ReactedUsers == nil {
		m.ReactedUsers = map[string][]int64{}
	}
	if m.ReactedUserNames == nil {
		m.ReactedUserNames = map[string][]string{}
	}
	if m.Kind == "" {
		m.Kind = KindText
	}
}

// Clone returns a shallow copy with its own top-level struct, so that
// replacing fields on the copy leaves the original untouched.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Reply != nil {
		r := *m.Reply
		cp.Reply = &r
	}
	return &cp
}

// Millis is a point in time that travels as epoch milliseconds. It also
// accepts RFC3339 strings and numeric strings on decode.
type Millis struct {
	time.Time
}

// FromMillis converts epoch milliseconds.
func FromMillis(ms int64) Millis {
	if ms == 0 {
		return Millis{}
	}
	return Millis{time.UnixMilli(ms).UTC()}
}

// Millis returns the epoch milliseconds, 0 for the zero time.
func (t Millis) Millis() int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (t Millis) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(t.Millis(), 10)), nil
}

func (t *Millis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Millis{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*t = Millis{}
			return nil
		}
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			*t = FromMillis(int64(ms))
			return nil
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*t = Millis{ts.UTC()}
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*t = FromMillis(int64(ms))
	return nil
}

// Flag is a boolean that the server may send as 0/1 or true/false.
type Flag bool

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch s := strings.Trim(string(bytes.TrimSpace(b)), `"`); s {
	case "", "null", "0", "false":
		*f = false
	default:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			*f = n > 0
			return nil
		}
		*f = s == "true"
	}
	return nil
}
