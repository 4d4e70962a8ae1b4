package auth

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

// Policy is the declarative role -> action capability table. It is loaded
// once at startup and consulted by every permission check, replacing ad hoc
// per-handler role comparisons.
type Policy struct {
	grants   map[Role]map[Action]struct{}
	wildcard map[Role]struct{}
}

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadPolicy parses the embedded capability table.
func LoadPolicy() (*Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(policyYAML, &f); err != nil {
		return nil, fmt.Errorf("failed to parse capability policy: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("capability policy defines no roles")
	}

	p := &Policy{
		grants:   make(map[Role]map[Action]struct{}, len(f.Roles)),
		wildcard: make(map[Role]struct{}),
	}
	for role, actions := range f.Roles {
		set := make(map[Action]struct{}, len(actions))
		for _, a := range actions {
			if a == "*" {
				p.wildcard[Role(role)] = struct{}{}
				continue
			}
			set[Action(a)] = struct{}{}
		}
		p.grants[Role(role)] = set
	}
	return p, nil
}

// MustLoadPolicy loads the embedded policy or panics. The table is compiled
// into the binary, so a parse failure is a build defect, not a runtime
// condition.
func MustLoadPolicy() *Policy {
	p, err := LoadPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

// Allows reports whether the role lists the action as a permitted verb.
// Unknown roles are denied.
func (p *Policy) Allows(role Role, action Action) bool {
	if _, ok := p.wildcard[role]; ok {
		return true
	}
	grants, ok := p.grants[role]
	if !ok {
		return false
	}
	_, ok = grants[action]
	return ok
}
