// Package catalog prices orders and loads the product catalog seed file.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document describing the catalog.
type SeedFile struct {
	Currency string        `yaml:"currency"`
	Products []ProductSeed `yaml:"products"`
}

type ProductSeed struct {
	ID     string   `yaml:"id"`
	Title  string   `yaml:"title"`
	Price  int64    `yaml:"price"`
	Sizes  []string `yaml:"sizes"`
	Colors []string `yaml:"colors"`
	Active *bool    `yaml:"active"`
}

// IsActive defaults to true when the field is omitted.
func (p ProductSeed) IsActive() bool {
	return p.Active == nil || *p.Active
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &seed, nil
}

func (p *Parser) ParseFile(path string) (*SeedFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog seed: %w", err)
	}
	return p.Parse(content)
}
