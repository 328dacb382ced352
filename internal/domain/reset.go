package domain

import (
	"fmt"
	"strings"
)

// ResetAction is one category of local state that can be wiped.
type ResetAction int

const (
	ResetPreferences ResetAction = iota
	ResetInstances
	ResetForms
	ResetLayers
	ResetCache
	ResetOSMDroid
)

var resetNames = [...]string{"preferences", "instances", "forms", "layers", "cache", "osmdroid"}

func AllResetActions() []ResetAction {
	return []ResetAction{ResetPreferences, ResetInstances, ResetForms, ResetLayers, ResetCache, ResetOSMDroid}
}

func (a ResetAction) String() string {
	if a < 0 || int(a) >= len(resetNames) {
		return fmt.Sprintf("ResetAction(%d)", int(a))
	}
	return resetNames[a]
}

func (a ResetAction) MarshalText() ([]byte, error) {
	if a < 0 || int(a) >= len(resetNames) {
		return nil, fmt.Errorf("unknown reset action %d", int(a))
	}
	return []byte(resetNames[a]), nil
}

func (a *ResetAction) UnmarshalText(text []byte) error {
	parsed, err := ParseResetAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func ParseResetAction(s string) (ResetAction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range resetNames {
		if n == name {
			return ResetAction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown reset action %q", s)
}
