package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
)

// InstrumentOutput maps one instrument id to a MIDI channel and note
type InstrumentOutput struct {
	Channel int `json:"channel"` // 1-16
	Note    int `json:"note"`
}

// MIDIConfig defines where cues are sent
type MIDIConfig struct {
	PortName      string             `json:"portName,omitempty"`
	Instruments   []InstrumentOutput `json:"instruments,omitempty"` // indexed by instrument id
	PositionalCC  int                `json:"positionalCC,omitempty"`
	IntensityCC   int                `json:"intensityCC,omitempty"`
	IntensityStep int                `json:"intensityStep,omitempty"`
	Velocity      int                `json:"velocity,omitempty"`
	GateMs        int                `json:"gateMs,omitempty"`
}

// EngineConfig tunes the scheduler
type EngineConfig struct {
	MinDelayMs int `json:"minDelayMs,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	FPS      int    `json:"fps,omitempty"`
	Palette  string `json:"palette,omitempty"` // path to a .gpl file, empty for the built-in one
	LastSong string `json:"lastSong,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	SongsDir string       `json:"songsDir,omitempty"`
	Engine   EngineConfig `json:"engine,omitempty"`
	MIDI     MIDIConfig   `json:"midi,omitempty"`
	UI       UIConfig     `json:"ui,omitempty"`
}

// General MIDI percussion: kick, snare, closed hat, open hat, low tom, crash
var defaultNotes = []int{36, 38, 42, 46, 45, 49}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	c := &Config{
		SongsDir: "songs",
		Engine:   EngineConfig{MinDelayMs: 1},
		MIDI: MIDIConfig{
			PositionalCC:  10,
			IntensityCC:   11,
			IntensityStep: 8,
			Velocity:      100,
			GateMs:        50,
		},
		UI: UIConfig{FPS: 60},
	}
	for i, note := range defaultNotes {
		c.MIDI.Instruments = append(c.MIDI.Instruments, InstrumentOutput{Channel: i + 1, Note: note})
	}
	return c
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-cue"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default location, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Fields missing from the file keep their
// default values.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fault.Wrap(err, fmsg.With("read config"))
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fault.Wrap(err, fmsg.WithDesc("parse config", "The config file at "+path+" is not valid JSON"))
	}
	cfg.fill()
	return cfg, nil
}

// fill restores defaults for values a config file zeroed out
func (c *Config) fill() {
	d := DefaultConfig()
	if c.Engine.MinDelayMs <= 0 {
		c.Engine.MinDelayMs = d.Engine.MinDelayMs
	}
	if c.UI.FPS <= 0 {
		c.UI.FPS = d.UI.FPS
	}
	if c.MIDI.Velocity <= 0 || c.MIDI.Velocity > 127 {
		c.MIDI.Velocity = d.MIDI.Velocity
	}
	if c.MIDI.GateMs <= 0 {
		c.MIDI.GateMs = d.MIDI.GateMs
	}
	if c.MIDI.IntensityStep <= 0 {
		c.MIDI.IntensityStep = d.MIDI.IntensityStep
	}
}

// Save writes the config to the default location
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fault.Wrap(err, fmsg.With("create config dir"))
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// MinDelay returns the engine timer resolution
func (c *Config) MinDelay() time.Duration {
	return time.Duration(c.Engine.MinDelayMs) * time.Millisecond
}

// FrameInterval returns the time between monitor frames
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.UI.FPS)
}

// Output returns the MIDI mapping for an instrument. Instruments past the
// configured list fall back to channel id+1 and the General MIDI kick.
func (m *MIDIConfig) Output(instrument int) InstrumentOutput {
	if instrument >= 0 && instrument < len(m.Instruments) {
		return m.Instruments[instrument]
	}
	return InstrumentOutput{Channel: instrument%16 + 1, Note: defaultNotes[0]}
}
