package render

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpeakerNames maps raw diarization labels to display names.
//
//	SPEAKER_00: Alice
//	SPEAKER_01: Bob
type SpeakerNames map[string]string

// LoadSpeakerNames reads a YAML label-to-name map. An empty path yields nil.
func LoadSpeakerNames(path string) (SpeakerNames, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read speaker names: %w", err)
	}
	var names SpeakerNames
	if err := yaml.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse speaker names %s: %w", path, err)
	}
	return names, nil
}

// Name returns the display name for label, or label itself when unmapped.
func (n SpeakerNames) Name(label string) string {
	if name, ok := n[label]; ok && name != "" {
		return name
	}
	return label
}
