package synth

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Recipe describes a reproducible synthetic capture: a payload plus the noise/gain/offset
// knobs to run it through, so a protocol package's golden test fixtures can be checked into
// testdata/*.yaml instead of hard-coded as Go literals.
type Recipe struct {
	Name       string  `yaml:"name"`
	Payload    []byte  `yaml:"payload"`
	Baud       int     `yaml:"baud"`
	SNRdB      float64 `yaml:"snr_db"`
	Gain       float64 `yaml:"gain"`
	Offset     float64 `yaml:"offset"`
	IdleStart  float64 `yaml:"idle_start"`
	IdleEnd    float64 `yaml:"idle_end"`
	RandomSeed int64   `yaml:"random_seed"`
}

// LoadRecipe reads a single Recipe document from a YAML fixture file.
func LoadRecipe(path string) (Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recipe{}, err
	}
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Recipe{}, err
	}
	return r, nil
}
