// Copyright (C) 2016 The Resource Authors.

package restype

// GameID identifies one of the supported Aurora-engine games, used only
// to pick which alias overlay to register on a Manager; the core itself
// has no per-game behavior beyond that.
type GameID int

const (
	GameUnknown GameID = -1
	GameNWN     GameID = 0
	GameNWN2    GameID = 1
	GameKotOR   GameID = 2
	GameKotOR2  GameID = 3
	GameJade    GameID = 4
	GameWitcher GameID = 5
	GameSonic   GameID = 6
	GameDragonAge  GameID = 7
	GameDragonAge2 GameID = 8
)

// RegisterGameAliases overlays the known ID collisions for game onto m.
// No alias is registered for any game: every call leaves m unchanged.
func RegisterGameAliases(m *Manager, game GameID) {
	switch game {
	case GameDragonAge2:
		// FXT was folded into FXR in the transcribed table (see
		// restype/filetype.go); nothing to alias today, but this is
		// where a newly discovered collision for this game would be
		// registered, e.g.:
		//   m.AddTypeAlias(someNewID, FXR)
	default:
	}
}
