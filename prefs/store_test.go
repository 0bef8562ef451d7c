package prefs

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Defaults(t *testing.T) {
	s := openMem(t)

	assert.Equal(t, ScreenNarrow, s.Screen())
	assert.Equal(t, SideBoth, s.Side())
}

func TestStore_ProfileGeneratedOnce(t *testing.T) {
	s := openMem(t)

	first, err := s.ActiveProfile()
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err)

	second, err := s.Get(KeyProfile)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_SetValidates(t *testing.T) {
	s := openMem(t)

	assert.ErrorIs(t, s.Set(KeyScreen, "huge"), ErrInvalidValue)
	assert.ErrorIs(t, s.Set(KeySide, "right"), ErrInvalidValue)
	assert.ErrorIs(t, s.Set(KeyProfile, "not-a-uuid"), ErrInvalidValue)
	assert.ErrorIs(t, s.Set("ui/theme", "dark"), ErrUnknownKey)
	_, err := s.Get("ui/theme")
	assert.ErrorIs(t, err, ErrUnknownKey)

	require.NoError(t, s.SetScreen(ScreenWide))
	require.NoError(t, s.SetSide(SideLeft))
	assert.Equal(t, ScreenWide, s.Screen())
	assert.Equal(t, SideLeft, s.Side())
}

func TestStore_WatchersSeeEveryChange(t *testing.T) {
	s := openMem(t)
	a, cancelA := s.Watch()
	defer cancelA()
	b, cancelB := s.Watch()
	defer cancelB()

	require.NoError(t, s.SetSide(SideLeft))

	for _, ch := range []<-chan Settings{a, b} {
		got := <-ch
		assert.Equal(t, SideLeft, got.Side)
		assert.Equal(t, ScreenNarrow, got.Screen)
		assert.NotEmpty(t, got.Profile)
	}
}

func TestStore_WatchKeepsLatest(t *testing.T) {
	s := openMem(t)
	_, err := s.ActiveProfile()
	require.NoError(t, err)
	ch, cancel := s.Watch()
	defer cancel()

	require.NoError(t, s.SetScreen(ScreenWide))
	require.NoError(t, s.SetSide(SideLeft))

	got := <-ch
	assert.Equal(t, Settings{Profile: got.Profile, Screen: ScreenWide, Side: SideLeft}, got)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra update %+v", extra)
	default:
	}
}

func TestStore_CancelClosesWatch(t *testing.T) {
	s := openMem(t)
	ch, cancel := s.Watch()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	require.NoError(t, s.SetSide(SideLeft))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.SetScreen(ScreenWide))
	profile, err := s.ActiveProfile()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, ScreenWide, s.Screen())
	again, err := s.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, profile, again)
}
