package optim

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Sweep is a grid search described in a file:
//
//	metric: settled_error
//	workers: 4
//	params:
//	  kp: [0.3, 0.6, 0.9]
//	  kd: [0.04, 0.08]
type Sweep struct {
	Metric  string               `yaml:"metric"`
	Workers int                  `yaml:"workers"`
	Params  map[string][]float64 `yaml:"params"`
}

func LoadSweep(path string) (*Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sweep Sweep
	if err := yaml.Unmarshal(data, &sweep); err != nil {
		return nil, fmt.Errorf("optim: %s: %w", path, err)
	}
	if sweep.Metric == "" {
		sweep.Metric = "mean_abs_error"
	}
	return &sweep, nil
}

// Grid builds the search with parameters in name order.
func (s *Sweep) Grid() (*GridSearch, error) {
	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	ranges := make([][]float64, len(names))
	for i, name := range names {
		ranges[i] = s.Params[name]
	}
	return NewGridSearch(names, ranges)
}
