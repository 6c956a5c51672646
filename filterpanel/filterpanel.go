// Package filterpanel binds the challenge listing filter panel to the action
// layer: state is mapped to display props, and user input is mapped to
// dispatched actions.
package filterpanel

import (
	"context"
	"sort"
	"strings"

	"chflow/action"
)

// Tracks known to the filter panel.
const (
	TrackDesign      = "design"
	TrackDevelop     = "develop"
	TrackDataScience = "data_science"
)

// AllTracks lists every track, in display order.
var AllTracks = []string{TrackDesign, TrackDevelop, TrackDataScience}

// State 筛选面板状态
type State struct {
	SearchText string          // 搜索关键字
	Expanded   bool            // 是否展开高级筛选
	Tracks     map[string]bool // 已启用的赛道
	Subtracks  []string        // 已选择的子赛道
}

// DefaultState returns a collapsed panel with every track enabled.
func DefaultState() State {
	tracks := make(map[string]bool, len(AllTracks))
	for _, t := range AllTracks {
		tracks[t] = true
	}
	return State{Tracks: tracks}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	if s.Tracks != nil {
		c.Tracks = make(map[string]bool, len(s.Tracks))
		for k, v := range s.Tracks {
			c.Tracks[k] = v
		}
	}
	if s.Subtracks != nil {
		c.Subtracks = append([]string(nil), s.Subtracks...)
	}
	return c
}

// Props is what the panel renders from.
type Props struct {
	SearchText    string
	Expanded      bool
	EnabledTracks []string
	Subtracks     []string
	// Filtered is true when any constraint narrows the listing.
	Filtered bool
}

// MapStateToProps derives the panel props from its state.
func MapStateToProps(s State) Props {
	enabled := make([]string, 0, len(AllTracks))
	for _, t := range AllTracks {
		if s.Tracks[t] {
			enabled = append(enabled, t)
		}
	}

	subtracks := append([]string(nil), s.Subtracks...)
	sort.Strings(subtracks)

	return Props{
		SearchText:    s.SearchText,
		Expanded:      s.Expanded,
		EnabledTracks: enabled,
		Subtracks:     subtracks,
		Filtered: strings.TrimSpace(s.SearchText) != "" ||
			len(enabled) != len(AllTracks) ||
			len(subtracks) > 0,
	}
}

// Handlers are the callbacks the panel invokes on user input.
type Handlers struct {
	SetSearchText   func(ctx context.Context, text string) error
	SetExpanded     func(ctx context.Context, expanded bool) error
	SetTrackEnabled func(ctx context.Context, track string, enabled bool) error
	SetSubtracks    func(ctx context.Context, subtracks []string) error
	ClearFilters    func(ctx context.Context) error
}

// MapDispatchToProps binds the panel callbacks to d.
func MapDispatchToProps(d action.Dispatcher) Handlers {
	return Handlers{
		SetSearchText: func(ctx context.Context, text string) error {
			return d.Dispatch(ctx, SetSearchText(text))
		},
		SetExpanded: func(ctx context.Context, expanded bool) error {
			return d.Dispatch(ctx, SetExpanded(expanded))
		},
		SetTrackEnabled: func(ctx context.Context, track string, enabled bool) error {
			return d.Dispatch(ctx, SetTrackEnabled(track, enabled))
		},
		SetSubtracks: func(ctx context.Context, subtracks []string) error {
			return d.Dispatch(ctx, SetSubtracks(subtracks))
		},
		ClearFilters: func(ctx context.Context) error {
			return d.Dispatch(ctx, ClearFilters())
		},
	}
}

// TrackToggle is the payload of SET_TRACK_ENABLED.
type TrackToggle struct {
	Track   string
	Enabled bool
}

// SetSearchText sets the free-text search.
func SetSearchText(text string) action.Action {
	return action.New(action.FilterPanelSetSearchText, text)
}

// SetExpanded opens or collapses the advanced filters.
func SetExpanded(expanded bool) action.Action {
	return action.New(action.FilterPanelSetExpanded, expanded)
}

// SetTrackEnabled enables or disables one track.
func SetTrackEnabled(track string, enabled bool) action.Action {
	return action.New(action.FilterPanelSetTrackEnabled, TrackToggle{
		Track:   strings.ToLower(strings.TrimSpace(track)),
		Enabled: enabled,
	})
}

// SetSubtracks replaces the selected subtracks.
func SetSubtracks(subtracks []string) action.Action {
	return action.New(action.FilterPanelSetSubtracks, append([]string(nil), subtracks...))
}

// ClearFilters resets search, tracks and subtracks. The expanded flag is kept.
func ClearFilters() action.Action {
	return action.New(action.FilterPanelClearFilters, nil)
}

// IsPanelAction reports whether t is handled by Reduce.
func IsPanelAction(t action.Type) bool {
	switch t {
	case action.FilterPanelSetSearchText,
		action.FilterPanelSetExpanded,
		action.FilterPanelSetTrackEnabled,
		action.FilterPanelSetSubtracks,
		action.FilterPanelClearFilters:
		return true
	}
	return false
}

// Reduce applies a to s and returns the new state. s is not modified.
// Unknown actions and malformed payloads return s unchanged.
func Reduce(s State, a action.Action) State {
	switch a.Type {
	case action.FilterPanelSetSearchText:
		if text, ok := a.Payload.(string); ok {
			s.SearchText = text
		}
		return s

	case action.FilterPanelSetExpanded:
		if expanded, ok := a.Payload.(bool); ok {
			s.Expanded = expanded
		}
		return s

	case action.FilterPanelSetTrackEnabled:
		toggle, ok := a.Payload.(TrackToggle)
		if !ok || toggle.Track == "" {
			return s
		}
		next := s.Clone()
		if next.Tracks == nil {
			next.Tracks = make(map[string]bool)
		}
		next.Tracks[toggle.Track] = toggle.Enabled
		return next

	case action.FilterPanelSetSubtracks:
		subtracks, ok := a.Payload.([]string)
		if !ok {
			return s
		}
		next := s.Clone()
		next.Subtracks = append([]string(nil), subtracks...)
		return next

	case action.FilterPanelClearFilters:
		cleared := DefaultState()
		cleared.Expanded = s.Expanded
		return cleared
	}
	return s
}
