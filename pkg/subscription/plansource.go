package subscription

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticSource serves a fixed plan catalog. Useful for tests and for hosts
// that compile their catalog in.
type StaticSource struct {
	plans map[string]Plan
}

// NewStaticSource copies the given plans into an immutable source.
func NewStaticSource(plans map[string]Plan) *StaticSource {
	cp := make(map[string]Plan, len(plans))
	for id, p := range plans {
		cp[id] = p
	}
	return &StaticSource{plans: cp}
}

func (s *StaticSource) Load(ctx context.Context) (map[string]Plan, error) {
	cp := make(map[string]Plan, len(s.plans))
	for id, p := range s.plans {
		cp[id] = p
	}
	return cp, nil
}

// YAMLSource loads the plan catalog from a YAML file:
//
//	plans:
//	  - id: starter
//	    name: Starter
//	    price: {amount: 0, currency: GBP}
//	    duration_days: 30
//	    enabled: true
type YAMLSource struct {
	path string
}

func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

func (s *YAMLSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make(map[string]Plan, len(doc.Plans))
	for _, p := range doc.Plans {
		if p.ID == "" {
			return nil, errors.Join(ErrFailedToLoadPlans,
				fmt.Errorf("plan without an id in %s", s.path))
		}
		if _, dup := plans[p.ID]; dup {
			return nil, errors.Join(ErrFailedToLoadPlans,
				fmt.Errorf("duplicate plan id %q in %s", p.ID, s.path))
		}
		plans[p.ID] = p
	}
	return plans, nil
}
