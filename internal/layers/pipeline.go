// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
package layers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mlnoga/fluolight/internal/config"
	"github.com/mlnoga/fluolight/internal/ops"
)

// One operator invocation on named layers
type Step struct {
	Operator    ops.Operator    `json:"-"`        // the actual operator
	OperatorRaw json.RawMessage `json:"operator"` // helper for unmarshaling
	Images      []string        `json:"images"`
	Labels      []string        `json:"labels,omitempty"`
}

// Unmarshals a step with a polymorphic operator, using the operator factory registry
func (s *Step) UnmarshalJSON(b []byte) error {
	type alias Step
	if err := json.Unmarshal(b, (*alias)(s)); err != nil {
		return err
	}
	if len(s.OperatorRaw) == 0 {
		return fmt.Errorf("step without operator in raw JSON message '%s'", string(b))
	}
	op, err := ops.UnmarshalOperator(s.OperatorRaw)
	if err != nil {
		return err
	}
	s.Operator, s.OperatorRaw = op, nil
	return nil
}

// Marshals a step using the actual operator, ignoring s.OperatorRaw
func (s *Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Operator ops.Operator `json:"operator"`
		Images   []string     `json:"images"`
		Labels   []string     `json:"labels,omitempty"`
	}{s.Operator, s.Images, s.Labels})
}

// Runs the step to completion, writing its results into the sink.
// Validation errors are returned before any work is started
func (s *Step) Run(ctx context.Context, store Store, c *ops.Context, d ops.Deliverer, sink *Sink) error {
	if s.Operator == nil {
		return fmt.Errorf("step without operator")
	}
	in, err := Resolve(store, s.Images, s.Labels)
	if err != nil {
		return err
	}
	job, err := ops.Dispatch(ctx, s.Operator, in, c, d, sink.Accept)
	if err != nil {
		return err
	}
	return job.Wait()
}

// A sequence of steps, where later steps can consume the layers produced by earlier ones
type Pipeline struct {
	Steps []*Step `json:"steps"`
}

// Runs all steps in order, stopping at the first error
func (p *Pipeline) Run(ctx context.Context, store Store, c *ops.Context, d ops.Deliverer, sink *Sink) error {
	for i, s := range p.Steps {
		if err := s.Run(ctx, store, c, d, sink); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// Parses a pipeline from JSON. A single step or a single operator is accepted as well
func ParsePipeline(data []byte) (*Pipeline, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["steps"]; ok {
		p := &Pipeline{}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	s := &Step{}
	if _, ok := probe["operator"]; ok {
		if err := json.Unmarshal(data, s); err != nil {
			return nil, err
		}
	} else {
		op, err := ops.UnmarshalOperator(data)
		if err != nil {
			return nil, err
		}
		s.Operator = op
	}
	return &Pipeline{Steps: []*Step{s}}, nil
}

// Loads a pipeline from a JSON or YAML file
func LoadPipeline(fileName string) (*Pipeline, error) {
	data, err := config.ReadParams(fileName)
	if err != nil {
		return nil, err
	}
	p, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return p, nil
}
