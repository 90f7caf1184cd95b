package db

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seed/exercises.yaml
var defaultSeed []byte

type SeedExercise struct {
	Name     string `yaml:"name"`
	Code     string `yaml:"code"`
	Solution string `yaml:"solution"`
}

// DefaultSeed returns the exercises shipped with the server
func DefaultSeed() ([]SeedExercise, error) {
	return ParseSeed(defaultSeed)
}

// LoadSeedFile reads a YAML list of exercises from disk
func LoadSeedFile(path string) ([]SeedExercise, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]SeedExercise, error) {
	var exercises []SeedExercise
	if err := yaml.Unmarshal(data, &exercises); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, ex := range exercises {
		if ex.Name == "" {
			return nil, fmt.Errorf("parse seed: exercise %d has no name", i)
		}
	}
	return exercises, nil
}
