// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package evidence

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// Rule is one declarative validation rule. A fact matches the rule when
// every term appears in the fact's content, case-insensitively. The rule
// fires once at least MinCount facts match, adding Contribution to the
// belief's confidence score.
type Rule struct {
	Name         string   `yaml:"name"`
	Terms        []string `yaml:"terms"`
	MinCount     int      `yaml:"min_count"`
	Contribution float64  `yaml:"contribution"`
}

// ruleFile is the top-level structure of a rules YAML document.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads and parses a rules YAML file. Malformed definitions fail
// here, at load time, so evaluation never sees a bad rule.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vderr.Wrapf(err, vderr.CodeRulesLoadReadFailure,
			"reading rules file %s", path)
	}

	return ParseRules(data)
}

// ParseRules parses YAML rule definitions and validates them. A document
// with zero rules is legal; every belief then scores 0.0.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, vderr.Errorf(vderr.CodeRulesDefinitionInvalid,
			"rules parse: %s", err)
	}

	if problems := validateRules(f.Rules); len(problems) > 0 {
		return nil, vderr.Errorf(vderr.CodeRulesDefinitionInvalid,
			"rules validation: %s", strings.Join(problems, "; "))
	}

	return f.Rules, nil
}

// validateRules checks every rule and reports all problems found rather
// than stopping at the first one.
func validateRules(rules []Rule) []string {
	var problems []string
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		name := strings.TrimSpace(r.Name)
		label := name
		switch {
		case name == "":
			label = fmt.Sprintf("rules[%d]", i)
			problems = append(problems, label+": name must not be empty")
		case seen[name]:
			problems = append(problems, fmt.Sprintf("%s: duplicate rule name", label))
		default:
			seen[name] = true
		}

		if len(r.Terms) == 0 {
			problems = append(problems, label+": terms must not be empty")
		}
		for j, term := range r.Terms {
			if strings.TrimSpace(term) == "" {
				problems = append(problems, fmt.Sprintf("%s: terms[%d] must not be blank", label, j))
			}
		}

		// min_count is stated explicitly per rule; a missing value reads
		// as zero and is rejected rather than defaulted.
		if r.MinCount < 1 {
			problems = append(problems, fmt.Sprintf("%s: min_count must be at least 1, got %d", label, r.MinCount))
		}

		if r.Contribution <= 0 || r.Contribution > 1 {
			problems = append(problems, fmt.Sprintf("%s: contribution must be in (0, 1], got %g", label, r.Contribution))
		}
	}

	return problems
}
