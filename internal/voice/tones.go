package voice

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultToneID = "friendly"

var ErrUnknownTone = errors.New("unknown voice tone")

// ToneProfile is a named voice personality. SynthesisVoiceID is requested from
// the speech service; PreferredVoices are name fragments used to pick an
// on-device voice when the service voice is not set.
type ToneProfile struct {
	ID               string   `yaml:"id" json:"id"`
	SynthesisVoiceID string   `yaml:"voice" json:"voice"`
	Description      string   `yaml:"description" json:"description"`
	PreferredVoices  []string `yaml:"preferred_voices" json:"preferred_voices,omitempty"`
}

// ToneSet is an ordered, immutable collection of tone profiles.
type ToneSet struct {
	order []string
	byID  map[string]ToneProfile
}

func DefaultTones() *ToneSet {
	set, _ := NewToneSet([]ToneProfile{
		{
			ID:               "professional",
			SynthesisVoiceID: "nova",
			Description:      "Professional and clear",
			PreferredVoices:  []string{"Microsoft David", "Google US English", "Alex", "Daniel"},
		},
		{
			ID:               "friendly",
			SynthesisVoiceID: "alloy",
			Description:      "Warm and approachable",
			PreferredVoices:  []string{"Microsoft Zira", "Google US English Female", "Samantha", "Karen"},
		},
		{
			ID:               "calm",
			SynthesisVoiceID: "shimmer",
			Description:      "Soothing and gentle",
			PreferredVoices:  []string{"Samantha", "Microsoft Zira", "Fiona", "Moira"},
		},
		{
			ID:               "confident",
			SynthesisVoiceID: "onyx",
			Description:      "Strong and assured",
			PreferredVoices:  []string{"Microsoft David", "Daniel", "Alex", "Google US English"},
		},
		{
			ID:               "conversational",
			SynthesisVoiceID: "echo",
			Description:      "Natural and engaging",
			PreferredVoices:  []string{"Karen", "Google US English Female", "Samantha", "Microsoft Zira"},
		},
	})
	return set
}

func NewToneSet(profiles []ToneProfile) (*ToneSet, error) {
	set := &ToneSet{byID: make(map[string]ToneProfile, len(profiles))}
	for _, p := range profiles {
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		p.SynthesisVoiceID = strings.TrimSpace(p.SynthesisVoiceID)
		if p.ID == "" {
			return nil, errors.New("tone id is required")
		}
		if _, dup := set.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate tone %q", p.ID)
		}
		set.order = append(set.order, p.ID)
		set.byID[p.ID] = p
	}
	if len(set.order) == 0 {
		return nil, errors.New("at least one tone is required")
	}
	return set, nil
}

func (s *ToneSet) Get(id string) (ToneProfile, bool) {
	p, ok := s.byID[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

func (s *ToneSet) List() []ToneProfile {
	out := make([]ToneProfile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// merge returns a copy of s where profiles in overrides replace entries with
// the same id and new ids are appended.
func (s *ToneSet) merge(overrides []ToneProfile) (*ToneSet, error) {
	base := s.List()
	index := make(map[string]int, len(base))
	for i, p := range base {
		index[p.ID] = i
	}
	for _, o := range overrides {
		id := strings.ToLower(strings.TrimSpace(o.ID))
		i, ok := index[id]
		if !ok {
			index[id] = len(base)
			base = append(base, o)
			continue
		}
		cur := base[i]
		if o.SynthesisVoiceID != "" {
			cur.SynthesisVoiceID = o.SynthesisVoiceID
		}
		if o.Description != "" {
			cur.Description = o.Description
		}
		if o.PreferredVoices != nil {
			cur.PreferredVoices = o.PreferredVoices
		}
		base[i] = cur
	}
	return NewToneSet(base)
}

type tonesFile struct {
	Replace bool          `yaml:"replace"`
	Tones   []ToneProfile `yaml:"tones"`
}

// LoadTones reads tone overrides from a YAML file. An empty path yields the
// defaults. With `replace: true` the file's tones replace the defaults
// entirely; otherwise they are merged over them by id.
func LoadTones(path string) (*ToneSet, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultTones(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tones file: %w", err)
	}
	return ParseTones(raw)
}

func ParseTones(raw []byte) (*ToneSet, error) {
	var f tonesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tones file: %w", err)
	}
	if f.Replace {
		return NewToneSet(f.Tones)
	}
	return DefaultTones().merge(f.Tones)
}
