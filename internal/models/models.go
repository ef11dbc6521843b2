package models

import "github.com/example/encounters/internal/geo"

// Ping is one parsed input record.
type Ping struct {
	Username  string       `json:"username"`
	Timestamp int64        `json:"timestamp"`
	Loc       geo.Location `json:"loc"`
}

// Participant is one side of an encounter.
type Participant struct {
	Username string       `json:"username"`
	Loc      geo.Location `json:"loc"`
}

// Encounter is an emitted encounter. Earlier and Later are ordered by
// username, not by which ping produced the encounter.
type Encounter struct {
	Earlier Participant `json:"earlier"`
	Later   Participant `json:"later"`
	Time    int64       `json:"time"`
}

// NewEncounter orders a and b lexicographically by username.
func NewEncounter(a, b Participant, t int64) Encounter {
	if a.Username < b.Username {
		return Encounter{Earlier: a, Later: b, Time: t}
	}
	return Encounter{Earlier: b, Later: a, Time: t}
}

// PairKey identifies the unordered pair of users.
func (e Encounter) PairKey() string {
	return e.Earlier.Username + "|" + e.Later.Username
}
