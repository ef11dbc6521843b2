package encounter

import "github.com/example/encounters/internal/geo"

// UserState is the engine's record of one user. Location and lastActive are
// always written together from the same ping.
type UserState struct {
	username   string
	location   geo.Location
	lastActive int64
	peers      map[string]int64 // peer username -> last encounter time
}

func NewUserState(username string, loc geo.Location, ts int64) *UserState {
	return &UserState{
		username:   username,
		location:   loc,
		lastActive: ts,
		peers:      make(map[string]int64),
	}
}

func (u *UserState) Username() string       { return u.username }
func (u *UserState) Location() geo.Location { return u.location }
func (u *UserState) LastActive() int64      { return u.lastActive }

// ApplyPing overwrites the position and last-active time. Timestamps are not
// required to increase; an older ping moves lastActive backwards.
func (u *UserState) ApplyPing(loc geo.Location, ts int64) {
	u.location = loc
	u.lastActive = ts
}

func (u *UserState) LastEncounterWith(peer string) (int64, bool) {
	t, ok := u.peers[peer]
	return t, ok
}

func (u *UserState) RecordEncounterWith(peer string, t int64) {
	u.peers[peer] = t
}

// Snapshot is a read-only copy of a UserState.
type Snapshot struct {
	Username   string
	Location   geo.Location
	LastActive int64
	Encounters map[string]int64
}

func (u *UserState) snapshot() Snapshot {
	peers := make(map[string]int64, len(u.peers))
	for k, v := range u.peers {
		peers[k] = v
	}
	return Snapshot{Username: u.username, Location: u.location, LastActive: u.lastActive, Encounters: peers}
}
