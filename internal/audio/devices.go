// Package audio discovers microphone inputs on the local Pulse server.
package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Source describes one Pulse input source.
type Source struct {
	Index       int
	Name        string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Monitor reports whether the source only mirrors a sink's output.
func (s Source) Monitor() bool {
	return strings.HasSuffix(s.Name, ".monitor")
}

// Label is the name shown to the user.
func (s Source) Label() string {
	if strings.TrimSpace(s.Description) != "" {
		return s.Description
	}
	return s.Name
}

// Input is one selectable microphone.
type Input struct {
	Index int
	Name  string
}

// ListSources returns the Pulse input sources with default/availability metadata.
func ListSources(_ context.Context) ([]Source, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("yakutan"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	sources := make([]Source, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		sources = append(sources, Source{
			Index:       int(info.SourceIndex),
			Name:        info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == defaultID,
		})
	}
	return sources, nil
}

// Inputs reduces sources to selectable microphones.
//
// Monitors and sources whose active port is unplugged are dropped, and
// sources that share a label (after case and whitespace folding) are listed
// once. A default source folded into an earlier duplicate makes the kept
// entry the default. defaultIndex is nil when the default source was dropped.
func Inputs(sources []Source) (inputs []Input, defaultIndex *int) {
	seen := make(map[string]int, len(sources))
	inputs = make([]Input, 0, len(sources))
	for _, src := range sources {
		if src.Monitor() || !src.Available {
			continue
		}
		key := nameKey(src.Label())
		if kept, dup := seen[key]; dup {
			if src.Default {
				defaultIndex = &kept
			}
			continue
		}
		seen[key] = src.Index

		inputs = append(inputs, Input{Index: src.Index, Name: src.Label()})
		if src.Default {
			idx := src.Index
			defaultIndex = &idx
		}
	}
	return inputs, defaultIndex
}

func nameKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// unknown=0, no=1, yes=2
		return port.Available == 0 || port.Available == 2
	}
	return true
}
