// Package prefs persists client-local preferences in PebbleDB and tells
// every watcher when they change.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Keys under which settings are stored.
const (
	KeyProfile = "profile/active"
	KeyScreen  = "ui/screen"
	KeySide    = "ui/side"
)

var (
	ErrUnknownKey   = errors.New("unknown preference key")
	ErrInvalidValue = errors.New("invalid preference value")
)

// Screen is the layout width.
type Screen string

const (
	ScreenNarrow Screen = "narrow"
	ScreenWide   Screen = "wide"
)

// Side is how messages are grouped: own messages on the right ("both") or
// everything on the left.
type Side string

const (
	SideBoth Side = "both"
	SideLeft Side = "left"
)

// Settings is a full snapshot of the preferences.
type Settings struct {
	Profile string `json:"profile"`
	Screen  Screen `json:"screen"`
	Side    Side   `json:"side"`
}

var defaults = map[string]string{
	KeyScreen: string(ScreenNarrow),
	KeySide:   string(SideBoth),
}

// Store is safe for concurrent use. Every session of the process shares
// one Store so that a change made by one is seen by all.
type Store struct {
	db *pebble.DB

	mu       sync.Mutex
	watchers map[chan Settings]struct{}
}

// Open opens (creating if needed) the store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	return open(filepath.Clean(dir), &pebble.Options{})
}

// OpenMemory opens a store that lives only in memory.
func OpenMemory() (*Store, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(dir string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open prefs: %w", err)
	}
	return &Store{db: db, watchers: make(map[chan Settings]struct{})}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	for ch := range s.watchers {
		close(ch)
	}
	s.watchers = make(map[chan Settings]struct{})
	s.mu.Unlock()
	return s.db.Close()
}

// Keys lists the keys Get and Set accept.
func Keys() []string {
	keys := []string{KeyProfile, KeyScreen, KeySide}
	sort.Strings(keys)
	return keys
}

// Get returns the stored value of key or its default.
func (s *Store) Get(key string) (string, error) {
	if key == KeyProfile {
		return s.ActiveProfile()
	}
	def, ok := defaults[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	v, found, err := s.get(key)
	if err != nil || !found {
		return def, err
	}
	return v, nil
}

// Set validates and stores value under key, then notifies watchers.
func (s *Store) Set(key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	if err := s.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	s.notify()
	return nil
}

func validate(key, value string) error {
	switch key {
	case KeyProfile:
		if _, err := uuid.Parse(value); err != nil {
			return fmt.Errorf("%w: %s must be a uuid", ErrInvalidValue, key)
		}
	case KeyScreen:
		if value != string(ScreenNarrow) && value != string(ScreenWide) {
			return fmt.Errorf("%w: %s must be narrow or wide", ErrInvalidValue, key)
		}
	case KeySide:
		if value != string(SideBoth) && value != string(SideLeft) {
			return fmt.Errorf("%w: %s must be both or left", ErrInvalidValue, key)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return nil
}

// ActiveProfile returns the profile token, generating and persisting one
// on first use.
func (s *Store) ActiveProfile() (string, error) {
	s.mu.Lock()
	v, found, err := s.get(KeyProfile)
	if err != nil || found {
		s.mu.Unlock()
		return v, err
	}
	v = uuid.NewString()
	err = s.db.Set([]byte(KeyProfile), []byte(v), pebble.Sync)
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("set %s: %w", KeyProfile, err)
	}
	log.Debug().Str("profile", v).Msg("[prefs] generated profile")
	s.notify()
	return v, nil
}

func (s *Store) Screen() Screen {
	v, err := s.Get(KeyScreen)
	if err != nil {
		return ScreenNarrow
	}
	return Screen(v)
}

func (s *Store) SetScreen(v Screen) error { return s.Set(KeyScreen, string(v)) }

func (s *Store) Side() Side {
	v, err := s.Get(KeySide)
	if err != nil {
		return SideBoth
	}
	return Side(v)
}

func (s *Store) SetSide(v Side) error { return s.Set(KeySide, string(v)) }

// Settings reads every preference.
func (s *Store) Settings() (Settings, error) {
	profile, err := s.ActiveProfile()
	if err != nil {
		return Settings{}, err
	}
	return Settings{Profile: profile, Screen: s.Screen(), Side: s.Side()}, nil
}

// Watch delivers the full settings after every change. Slow readers only
// see the latest settings.
func (s *Store) Watch() (<-chan Settings, func()) {
	ch := make(chan Settings, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.watchers[ch]; ok {
				delete(s.watchers, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify() {
	cur, err := s.Settings()
	if err != nil {
		log.Warn().Err(err).Msg("[prefs] read settings for watchers")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- cur
	}
}

func (s *Store) get(key string) (string, bool, error) {
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	return string(v), true, nil
}
