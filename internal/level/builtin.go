package level

import (
	"embed"
	"fmt"
	"path"
	"slices"
)

//go:embed levels/*.yaml
var builtinFS embed.FS

// Order lists the built-in levels in play order. Completing a level
// unlocks the next one.
var Order = []string{"tutorial_01", "transfer_01", "river_01"}

// Builtin loads a built-in level by id.
func Builtin(id string) (*Level, error) {
	if !slices.Contains(Order, id) {
		return nil, fmt.Errorf("unknown built-in level %q", id)
	}
	data, err := builtinFS.ReadFile(path.Join("levels", id+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("read built-in level %s: %w", id, err)
	}
	return Parse(data)
}

// Resolve loads a built-in level by id, or a level file by path.
func Resolve(ref string) (*Level, error) {
	if slices.Contains(Order, ref) {
		return Builtin(ref)
	}
	return LoadFile(ref)
}

// Index returns the play-order position of a level id, or -1.
func Index(id string) int {
	return slices.Index(Order, id)
}

// InitialUnlocked returns the unlocked-levels vector of a new player:
// only the first level is open.
func InitialUnlocked() []bool {
	out := make([]bool, len(Order))
	if len(out) > 0 {
		out[0] = true
	}
	return out
}

// Unlock marks the level after id as unlocked. The vector grows if the
// catalog gained levels since it was saved.
func Unlock(unlocked []bool, id string) []bool {
	for len(unlocked) < len(Order) {
		unlocked = append(unlocked, false)
	}
	if i := Index(id); i >= 0 {
		unlocked[i] = true
		if i+1 < len(unlocked) {
			unlocked[i+1] = true
		}
	}
	return unlocked
}
