package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RecordFileName is the per-project deployment record, written next to the
// compose file.
const RecordFileName = ".hackerrun.yml"

// DeploymentRecord describes the most recent deployment of a project.
// Single-slot state: each deploy fully overwrites the previous record.
type DeploymentRecord struct {
	ID         string    `yaml:"id"`
	Host       string    `yaml:"host"`
	Service    string    `yaml:"service"`
	Domain     string    `yaml:"domain"`
	DeployedAt time.Time `yaml:"deployed_at"`
}

// SaveRecord overwrites the project's deployment record in dir.
func SaveRecord(dir string, rec DeploymentRecord) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize deployment record: %w", err)
	}
	path := filepath.Join(dir, RecordFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write deployment record: %w", err)
	}
	return nil
}

// LoadRecord reads the project's deployment record from dir.
func LoadRecord(dir string) (*DeploymentRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, RecordFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment record: %w", err)
	}
	var rec DeploymentRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse deployment record: %w", err)
	}
	return &rec, nil
}
