package multitenantengine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/rulecheck/policy"
)

const (
	maxNameLength   = 100
	maxPolicyLength = 1000
)

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// reservedNames collide with route segments or CLI keywords.
var reservedNames = map[string]bool{
	"all":     true,
	"default": true,
	"new":     true,
	"none":    true,
}

// ValidateRulesetName checks a ruleset or tenant identifier: 1 to 100
// characters, lowercase letters, digits, '.', '_' and '-', starting with a
// letter or digit, and not a reserved word.
func ValidateRulesetName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name length %d exceeds maximum of %d characters", len(name), maxNameLength)
	}
	if !validName.MatchString(name) {
		return fmt.Errorf("name %q must match pattern %s", name, validName.String())
	}
	if reservedNames[name] {
		return fmt.Errorf("cannot use reserved name %q", name)
	}
	return nil
}

// ValidatePolicyExpression checks that expr is a usable conformance policy
func ValidatePolicyExpression(expr string) error {
	if expr == "" {
		return fmt.Errorf("policy expression cannot be empty")
	}
	if strings.TrimSpace(expr) != expr {
		return fmt.Errorf("policy expression has leading or trailing whitespace")
	}
	if len(expr) > maxPolicyLength {
		return fmt.Errorf("policy expression length %d exceeds maximum of %d characters", len(expr), maxPolicyLength)
	}
	if _, err := policy.Compile(expr); err != nil {
		return fmt.Errorf("invalid policy expression: %w", err)
	}
	return nil
}
