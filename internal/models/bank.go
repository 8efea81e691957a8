package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BankTest is one test definition in a question-bank YAML file.
type BankTest struct {
	Title      string     `yaml:"title"`
	Subject    string     `yaml:"subject"`
	Status     string     `yaml:"status"`
	Questions  []Question `yaml:"questions"`
	Config     TestConfig `yaml:"config"`
	Deployment Deployment `yaml:"deployment"`
}

// QuestionBank is the parsed seed file.
type QuestionBank struct {
	Tests []BankTest `yaml:"tests"`
}

// LoadQuestionBank reads and parses a question-bank YAML file used to seed
// test definitions at startup.
func LoadQuestionBank(path string) (*QuestionBank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank file: %w", err)
	}

	var bank QuestionBank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("failed to unmarshal question bank YAML: %w", err)
	}

	return &bank, nil
}
