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
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/compose-engine/compose/pkg/api"
)

// Project aggregates every service declared for one project name, resolves
// cross-service references, and exposes the project-wide operations of
// spec.md §4.F.
type Project struct {
	Name      string
	Namespace string // used to resolve "project_service" cross-project references
	Services  map[string]*Service
	order     []*ServiceDeclaration // dependency order, services before dependents
	Client    api.EngineClient
	Externals map[string]*Project // external projects consulted by GetService, keyed by Namespace + project reference
}

// ProjectNameFromEnv derives a project name the way
// original_source/compose/cli/command.py::get_project_name does:
// COMPOSE_PROJECT_NAME, then the legacy FIG_PROJECT_NAME, then a supplied
// fallback (typically the containing directory's basename), normalized to
// lowercase alphanumerics and defaulting to "default" (spec.md §6).
func ProjectNameFromEnv(fallback string) string {
	if v := os.Getenv("COMPOSE_PROJECT_NAME"); v != "" {
		return api.NormalizeProjectName(v)
	}
	if v := os.Getenv("FIG_PROJECT_NAME"); v != "" {
		return api.NormalizeProjectName(v)
	}
	return api.NormalizeProjectName(fallback)
}

// NewProject builds a Project from declarations, validating each one and
// topologically sorting them before any cross-reference is resolved, so
// that a bad reference is always reported before any engine call is made.
// It has no namespace override or external projects; use
// NewProjectWithNamespace for those.
func NewProject(name string, decls []*ServiceDeclaration, client api.EngineClient) (*Project, error) {
	return NewProjectWithNamespace(name, decls, client, "", nil)
}

// NewProjectWithNamespace is
// original_source/compose/project.py::Project.from_dicts's
// from_declarations(name, decls, client, namespace?, externals?): namespace
// defaults to the (normalized) project name, and externals is consulted by
// GetService for "project_service"-qualified references that don't resolve
// to this project.
func NewProjectWithNamespace(name string, decls []*ServiceDeclaration, client api.EngineClient, namespace string, externals map[string]*Project) (*Project, error) {
	name = api.NormalizeProjectName(name)
	if namespace == "" {
		namespace = name
	}
	for _, d := range decls {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	ordered, err := SortServices(decls)
	if err != nil {
		return nil, err
	}

	p := &Project{
		Name:      name,
		Namespace: namespace,
		Services:  map[string]*Service{},
		order:     ordered,
		Client:    client,
		Externals: externals,
	}
	for _, d := range ordered {
		p.Services[d.Name] = newService(p, d, client)
	}
	if err := p.validateReferences(); err != nil {
		return nil, err
	}
	return p, nil
}

// validateReferences ensures every links/volumes_from/net service reference
// names a service that actually exists in this project (spec.md §4.F).
func (p *Project) validateReferences() error {
	for _, d := range p.order {
		for _, link := range d.Links {
			if _, ok := p.Services[serviceNameOf(link)]; !ok {
				return api.NewConfigurationError("Service %q has a link to %q which does not exist", d.Name, serviceNameOf(link))
			}
		}
		for _, vf := range d.VolumesFrom {
			if name, ok := volumesFromServiceName(vf); ok {
				if _, exists := p.Services[name]; !exists {
					return api.NewConfigurationError("Service %q has volumes_from %q which does not exist", d.Name, name)
				}
			}
		}
		if name, ok := netServiceName(d.Net); ok {
			if _, exists := p.Services[name]; !exists {
				return api.NewConfigurationError("Service %q has net %q which does not exist", d.Name, name)
			}
		}
	}
	return nil
}

// GetService returns the named service, resolving a "project_service"
// qualified reference against this project's namespace and, failing that,
// its external projects, the way
// original_source/compose/project.py::get_service does: split at the last
// underscore; a left side equal to Namespace selects this project's own
// services, any other left side is prefixed with Namespace and looked up in
// Externals. An unqualified name (no underscore) is looked up directly.
func (p *Project) GetService(name string) (*Service, error) {
	projectName, serviceName := p.Namespace, name
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		projectName, serviceName = name[:i], name[i+1:]
		if projectName != p.Namespace {
			projectName = p.Namespace + projectName
		}
	}

	if projectName == p.Namespace {
		if s, ok := p.Services[serviceName]; ok {
			return s, nil
		}
	}
	if ext, ok := p.Externals[projectName]; ok {
		return ext.GetService(serviceName)
	}
	return nil, &api.NoSuchServiceError{Name: name}
}

// GetServices resolves names to Services in dependency order; when
// includeDeps is true, every service named is expanded to include its own
// transitive dependencies first, preserving order and removing duplicates
// (original_source/compose/project.py::get_services/_inject_deps).
func (p *Project) GetServices(names []string, includeDeps bool) ([]*Service, error) {
	if len(names) == 0 {
		names = make([]string, 0, len(p.order))
		for _, d := range p.order {
			names = append(names, d.Name)
		}
	}
	wanted := map[string]bool{}
	for _, n := range names {
		if _, ok := p.Services[n]; !ok {
			return nil, &api.NoSuchServiceError{Name: n}
		}
		wanted[n] = true
	}
	if includeDeps {
		for _, n := range names {
			p.addTransitiveDeps(n, wanted)
		}
	}
	var out []*Service
	for _, d := range p.order {
		if wanted[d.Name] {
			out = append(out, p.Services[d.Name])
		}
	}
	return out, nil
}

func (p *Project) addTransitiveDeps(name string, wanted map[string]bool) {
	d, ok := p.Services[name]
	if !ok {
		return
	}
	for _, dep := range serviceDependencyNames(d.Decl) {
		if !wanted[dep] {
			wanted[dep] = true
			p.addTransitiveDeps(dep, wanted)
		}
	}
}

func serviceDependencyNames(d *ServiceDeclaration) []string {
	var deps []string
	for _, link := range d.Links {
		deps = append(deps, serviceNameOf(link))
	}
	for _, vf := range d.VolumesFrom {
		if name, ok := volumesFromServiceName(vf); ok {
			deps = append(deps, name)
		}
	}
	if name, ok := netServiceName(d.Net); ok {
		deps = append(deps, name)
	}
	return deps
}

// Containers returns every non-one-off container across every service in the project.
func (p *Project) Containers(ctx context.Context) (Containers, error) {
	var all Containers
	for _, d := range p.order {
		cs, err := p.Services[d.Name].Containers(ctx, oneOffExclude)
		if err != nil {
			return nil, err
		}
		all = append(all, cs...)
	}
	return all, nil
}

// forEachService runs fn over the named services, accumulating every error
// into a single *multierror.Error instead of aborting at the first failure
// (spec.md §4.F, SPEC_FULL.md §3). reverse iterates in reverse dependency
// order — the order `stop`/`kill` require, so a service's dependents are
// always stopped/killed before the service itself.
func (p *Project) forEachService(names []string, reverse bool, fn func(*Service) error) error {
	services, err := p.GetServices(names, false)
	if err != nil {
		return err
	}
	if reverse {
		for i, j := 0, len(services)-1; i < j; i, j = i+1, j-1 {
			services[i], services[j] = services[j], services[i]
		}
	}
	var result *multierror.Error
	for _, s := range services {
		if err := fn(s); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Start starts the named services (all, if names is empty).
func (p *Project) Start(ctx context.Context, names []string) error {
	return p.forEachService(names, false, func(s *Service) error { return s.Start(ctx) })
}

// Stop stops the named services, in reverse dependency order (spec.md §4.F).
func (p *Project) Stop(ctx context.Context, names []string, timeout time.Duration) error {
	return p.forEachService(names, true, func(s *Service) error { return s.Stop(ctx, timeout) })
}

// Kill kills the named services, in reverse dependency order (spec.md §4.F).
func (p *Project) Kill(ctx context.Context, names []string) error {
	return p.forEachService(names, true, func(s *Service) error { return s.Kill(ctx) })
}

// Restart restarts the named services.
func (p *Project) Restart(ctx context.Context, names []string) error {
	return p.forEachService(names, false, func(s *Service) error { return s.Restart(ctx) })
}

// RemoveStopped removes stopped containers of the named services.
func (p *Project) RemoveStopped(ctx context.Context, names []string) error {
	return p.forEachService(names, false, func(s *Service) error { return s.RemoveStopped(ctx) })
}

// Pull pulls the images of the named services that declare one.
func (p *Project) Pull(ctx context.Context, names []string, insecureRegistry bool) error {
	return p.forEachService(names, false, func(s *Service) error {
		if s.Decl.Image == "" {
			return nil
		}
		return s.Pull(ctx, insecureRegistry)
	})
}

// Build builds the images of the named services that declare a build
// context, in dependency order (builds never run concurrently, since a
// later service's build context may reference an earlier image).
func (p *Project) Build(ctx context.Context, names []string, noCache bool) error {
	services, err := p.GetServices(names, false)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, s := range services {
		if !s.Decl.CanBeBuilt() {
			continue
		}
		if _, err := s.Build(ctx, noCache); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// UpOptions configures a project-wide Up call.
type UpOptions struct {
	Services        []string
	SmartRecreate   bool // compare config-hash before deciding recreate
	AllowRecreate   bool // false limits plans to "create"/"start"/"noop", never "recreate"
	StartDeps       bool // include transitive dependencies of Services
	FreshStart      bool // rejected, see SPEC_FULL.md §5 Open Question Decisions
	Timeout         time.Duration
	InsecureRegistry bool
}

// Up plans and executes convergence for the requested services, in
// dependency order (spec.md §4.G, §4.H).
func (p *Project) Up(ctx context.Context, opts UpOptions) error {
	if opts.FreshStart {
		return api.NewConfigError("fresh_start is not a supported Up option")
	}
	services, err := p.GetServices(opts.Services, opts.StartDeps)
	if err != nil {
		return err
	}

	planner := &Planner{SmartRecreate: opts.SmartRecreate, AllowRecreate: opts.AllowRecreate}
	executor := &Executor{Timeout: opts.Timeout, InsecureRegistry: opts.InsecureRegistry}

	upstreamRecreated := map[string]bool{}
	for _, s := range services {
		plan, err := planner.Plan(ctx, s, upstreamRecreated)
		if err != nil {
			return err
		}
		logrus.WithField("project", p.Name).WithField("service", s.Decl.Name).
			Infof("convergence plan: %s", plan.Action)
		if err := executor.Apply(ctx, s, plan); err != nil {
			return err
		}
		if plan.Action == ActionRecreate || plan.Action == ActionCreate {
			upstreamRecreated[s.Decl.Name] = true
		}
	}
	return nil
}
