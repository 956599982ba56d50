package multitrack

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfiguration is returned for track configurations that cannot be
// played
var ErrInvalidConfiguration = errors.New("invalid track configuration")

// GainParams is a gain multiplier and a mute flag
type GainParams struct {
	Gain float64 `yaml:"gain"`
	Mute bool    `yaml:"mute"`
}

// DefaultGainParams returns unity gain, unmuted
func DefaultGainParams() GainParams {
	return GainParams{Gain: 1}
}

// Value returns the effective multiplier
func (p GainParams) Value() float64 {
	if p.Mute {
		return 0
	}
	return p.Gain
}

// PlaybackRange is the playable [start, end] window of a track as fractions of
// its decoded duration
type PlaybackRange [2]float64

// DefaultPlaybackRange covers the whole track
func DefaultPlaybackRange() PlaybackRange {
	return PlaybackRange{0, 1}
}

// Validate checks 0 <= start < end <= 1
func (r PlaybackRange) Validate() error {
	if r[0] < 0 || r[1] > 1 || r[0] >= r[1] {
		return fmt.Errorf("%w: playback range [%g, %g] must satisfy 0 <= start < end <= 1",
			ErrInvalidConfiguration, r[0], r[1])
	}
	return nil
}

// TrackConfig configures one track. Nil fields take their defaults.
type TrackConfig struct {
	Name          string         `yaml:"name"`
	SourceURL     string         `yaml:"sourceUrl"`
	PlaybackRange *PlaybackRange `yaml:"playbackRange"`
	GainParams    *GainParams    `yaml:"gainParams"`
	CustomProps   map[string]any `yaml:"customProps"`
}

// ResolvedPlaybackRange returns the configured range or the default
func (c TrackConfig) ResolvedPlaybackRange() PlaybackRange {
	if c.PlaybackRange == nil {
		return DefaultPlaybackRange()
	}
	return *c.PlaybackRange
}

// ResolvedGainParams returns the configured gain or the default
func (c TrackConfig) ResolvedGainParams() GainParams {
	if c.GainParams == nil {
		return DefaultGainParams()
	}
	return *c.GainParams
}

// TrackConfiguration is the ordered set of tracks played together. The first
// track is the master track.
type TrackConfiguration struct {
	Tracks         []TrackConfig `yaml:"tracks"`
	SoloTrackIndex int           `yaml:"soloTrackIndex"`
}

// NewTrackConfiguration creates a configuration without solo
func NewTrackConfiguration(tracks ...TrackConfig) TrackConfiguration {
	return TrackConfiguration{Tracks: tracks, SoloTrackIndex: NoSolo}
}

// UnmarshalYAML defaults SoloTrackIndex to NoSolo when absent
func (c *TrackConfiguration) UnmarshalYAML(node *yaml.Node) error {
	type plain TrackConfiguration
	raw := plain{SoloTrackIndex: NoSolo}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*c = TrackConfiguration(raw)
	return nil
}

// Validate checks every track and the solo index
func (c TrackConfiguration) Validate() error {
	if len(c.Tracks) == 0 {
		return fmt.Errorf("%w: at least one track is required", ErrInvalidConfiguration)
	}

	for i, track := range c.Tracks {
		if track.SourceURL == "" {
			return fmt.Errorf("%w: track %d has no source URL", ErrInvalidConfiguration, i)
		}
		if err := track.ResolvedPlaybackRange().Validate(); err != nil {
			return fmt.Errorf("track %d: %w", i, err)
		}
		if g := track.ResolvedGainParams(); g.Gain < 0 {
			return fmt.Errorf("%w: track %d has negative gain %g", ErrInvalidConfiguration, i, g.Gain)
		}
	}

	if c.SoloTrackIndex < NoSolo || c.SoloTrackIndex >= len(c.Tracks) {
		return fmt.Errorf("%w: solo track index %d out of range", ErrInvalidConfiguration, c.SoloTrackIndex)
	}

	return nil
}

// ParseTrackConfiguration decodes and validates a YAML track configuration
func ParseTrackConfiguration(data []byte) (TrackConfiguration, error) {
	var c TrackConfiguration
	if err := yaml.Unmarshal(data, &c); err != nil {
		return TrackConfiguration{}, fmt.Errorf("failed to parse track configuration: %w", err)
	}
	if err := c.Validate(); err != nil {
		return TrackConfiguration{}, err
	}
	return c, nil
}

// LoadTrackConfiguration reads a YAML track configuration file
func LoadTrackConfiguration(path string) (TrackConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TrackConfiguration{}, fmt.Errorf("failed to read track configuration: %w", err)
	}
	return ParseTrackConfiguration(data)
}
