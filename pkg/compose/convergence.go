/*
   Copyright 2020 Docker Compose CLI authors

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package compose

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/compose-engine/compose/pkg/api"
)

// Action is the convergence decision for a single service (spec.md §4.G).
type Action string

const (
	ActionNoop     Action = "noop"
	ActionStart    Action = "start"
	ActionRecreate Action = "recreate"
	ActionCreate   Action = "create"
)

// Plan is the outcome of planning one service's convergence. Container is
// the service's lowest-numbered container, nil when Action is Create.
type Plan struct {
	Service   string
	Action    Action
	Container *api.Container
}

// Planner decides, for each service in dependency order, whether its
// container needs to be created, started, recreated, or left alone
// (spec.md §4.G).
type Planner struct {
	// SmartRecreate compares a service's config-hash fingerprint against
	// its running container's label and only recreates on a mismatch.
	// Ignored once an upstream dependency has already been recreated,
	// since an unrelated hash can't account for a changed dependency
	// (original_source/compose/project.py::_get_convergence_plans).
	SmartRecreate bool
	// AllowRecreate false restricts the planner to {create, start, noop}.
	AllowRecreate bool
}

// Plan computes one service's convergence action. upstreamRecreated records,
// by service name, which already-planned services in this Up call were
// created or recreated; if s depends on one of them and AllowRecreate is set,
// s is recreated regardless of SmartRecreate.
func (p *Planner) Plan(ctx context.Context, s *Service, upstreamRecreated map[string]bool) (Plan, error) {
	containers, err := s.Containers(ctx, oneOffExclude)
	if err != nil {
		return Plan{}, err
	}
	if len(containers) == 0 {
		return Plan{Service: s.Decl.Name, Action: ActionCreate}, nil
	}

	primary := containers.sorted()[0]

	// An upstream recreate only forces smart_recreate off for this service
	// (original_source/compose/project.py::_get_convergence_plans) — it does
	// not bypass the allow_recreate gate below.
	forceRecreate := p.dependsOnRecreated(s, upstreamRecreated)

	if !p.AllowRecreate {
		if primary.IsRunning() {
			return Plan{Service: s.Decl.Name, Action: ActionNoop, Container: &primary}, nil
		}
		return Plan{Service: s.Decl.Name, Action: ActionStart, Container: &primary}, nil
	}

	if p.SmartRecreate && !forceRecreate {
		hash, err := ServiceFingerprint(s.Decl)
		if err == nil && primary.Labels[api.ConfigHashLabel] == hash {
			if primary.IsRunning() {
				return Plan{Service: s.Decl.Name, Action: ActionNoop, Container: &primary}, nil
			}
			return Plan{Service: s.Decl.Name, Action: ActionStart, Container: &primary}, nil
		}
	}

	return Plan{Service: s.Decl.Name, Action: ActionRecreate, Container: &primary}, nil
}

func (p *Planner) dependsOnRecreated(s *Service, upstreamRecreated map[string]bool) bool {
	for _, dep := range serviceDependencyNames(s.Decl) {
		if upstreamRecreated[dep] {
			return true
		}
	}
	return false
}

// Executor applies a Plan against the engine and then, when the service's
// declared scale is not 1, reconciles its replica count to that scale
// (spec.md §4.H). With a scale of 1, containers beyond the planned one are
// left as they are.
type Executor struct {
	Timeout          time.Duration
	InsecureRegistry bool
}

// Apply executes plan for s.
func (e *Executor) Apply(ctx context.Context, s *Service, plan Plan) error {
	switch plan.Action {
	case ActionNoop:
		// nothing to do for instance 1
	case ActionStart:
		if err := s.Client.Start(ctx, plan.Container.ID); err != nil {
			return err
		}
	case ActionCreate:
		if s.Decl.CanBeBuilt() {
			if _, err := s.Build(ctx, false); err != nil {
				return err
			}
		}
		id, err := s.CreateContainer(ctx, 1, false, nil)
		if err != nil {
			return err
		}
		if err := s.Client.Start(ctx, id); err != nil {
			return err
		}
	case ActionRecreate:
		if _, err := s.RecreateContainer(ctx, *plan.Container); err != nil {
			return err
		}
	default:
		logrus.WithField("service", s.Decl.Name).Warnf("unknown convergence action %q", plan.Action)
	}

	scale := s.Decl.EffectiveScale()
	if scale != 1 {
		return s.Scale(ctx, scale)
	}
	return nil
}
