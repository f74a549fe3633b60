package pdffields

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// FieldRule recognizes one named field in page text. Pattern must have one
// capture group holding the field value.
type FieldRule struct {
	Name       string `yaml:"name"`
	Pattern    string `yaml:"pattern"`
	Confidence int    `yaml:"confidence"`

	re *regexp.Regexp
}

// Template drives extraction for a document class: which fields to look
// for, and how to split pages into accounts.
type Template struct {
	Fields []FieldRule `yaml:"fields"`

	// NewAccountPattern marks the first page of each account section.
	NewAccountPattern string `yaml:"new_account_pattern"`

	accountRe *regexp.Regexp
}

// maxExtractedConfidence keeps automated extraction below the score
// reserved for human corrections.
const maxExtractedConfidence = 99

const defaultRuleConfidence = 75

func LoadTemplate(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read extraction template: %w", err)
	}

	var tpl Template
	if err := yaml.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("parse extraction template: %w", err)
	}
	if err := tpl.compile(); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// DefaultTemplate covers the common labeled-value layout of scanned
// statements.
func DefaultTemplate() *Template {
	tpl := &Template{
		Fields: []FieldRule{
			{Name: "Name", Pattern: `(?im)^\s*(?:customer\s+)?name\s*[:\s]\s*(.+?)\s*$`, Confidence: 85},
			{Name: "Account Number", Pattern: `(?im)account\s+(?:number|no\.?)\s*[:\s]\s*([\w-]+)`, Confidence: 90},
			{Name: "Date", Pattern: `(?im)(?:statement\s+)?date\s*[:\s]\s*([\d/.-]+)`, Confidence: 80},
			{Name: "Balance", Pattern: `(?im)(?:closing\s+)?balance\s*[:\s]\s*([\d,.]+)`, Confidence: 70},
		},
		NewAccountPattern: `(?im)account\s+(?:number|no\.?)\s*[:\s]`,
	}
	if err := tpl.compile(); err != nil {
		// The built-in patterns are constants; a compile failure is a bug.
		panic(err)
	}
	return tpl
}

func (t *Template) compile() error {
	if len(t.Fields) == 0 {
		return fmt.Errorf("extraction template has no field rules")
	}
	for i := range t.Fields {
		rule := &t.Fields[i]
		if rule.Name == "" {
			return fmt.Errorf("extraction template rule %d has no name", i)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("compile pattern for field %q: %w", rule.Name, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("pattern for field %q has no capture group", rule.Name)
		}
		rule.re = re

		if rule.Confidence <= 0 {
			rule.Confidence = defaultRuleConfidence
		}
		if rule.Confidence > maxExtractedConfidence {
			rule.Confidence = maxExtractedConfidence
		}
	}

	if t.NewAccountPattern != "" {
		re, err := regexp.Compile(t.NewAccountPattern)
		if err != nil {
			return fmt.Errorf("compile new-account pattern: %w", err)
		}
		t.accountRe = re
	}
	return nil
}

func (t *Template) startsNewAccount(pageText string) bool {
	return t.accountRe != nil && t.accountRe.MatchString(pageText)
}
