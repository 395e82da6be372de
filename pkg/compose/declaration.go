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

// Package compose implements the convergence engine: services, dependency
// ordering, and the planner/executor pair that reconciles a project's
// declared services against what the configured engine reports running.
package compose

import (
	"fmt"

	"github.com/compose-engine/compose/pkg/api"
)

// ServiceDeclaration is the plain, already-parsed record describing one
// service of a project (spec.md §3). Loading it from a compose file is an
// out-of-scope collaborator; callers construct or decode it themselves.
type ServiceDeclaration struct {
	Name string

	Image string
	Build string // build context path; mutually exclusive with Image

	Command    []string
	Entrypoint []string
	Env        []string
	Labels     map[string]string

	Links       []string // "service[:alias]"
	VolumesFrom []string // "service[:mode]" or "container:<id>[:mode]"
	Net         string   // "", "bridge", "host", "none", "container:<id>", "service:<name>"

	Ports       []string // "[[host_ip:]host_port:]container_port[/proto]"
	Expose      []string
	Volumes     []string // "[external:]internal[:mode]"
	ExtraHosts  interface{}
	Restart     string
	DNS         []string
	DNSSearch   []string
	CapAdd      []string
	CapDrop     []string
	Privileged  bool
	ReadOnly    bool
	PidMode     string
	Hostname    string
	Domainname  string
	LogDriver   string

	Scale int // desired instance count; 0 means "unset", treated as 1
}

// Validate checks the static invariants spec.md §3/§8 require before a
// declaration takes part in dependency sort or convergence.
func (d *ServiceDeclaration) Validate() error {
	if !api.IsValidServiceName(d.Name) {
		return api.NewConfigError("Invalid service name %q: only [A-Za-z0-9] allowed", d.Name)
	}
	if d.Image != "" && d.Build != "" {
		return api.NewConfigError("service %q specifies both image and build", d.Name)
	}
	if d.Image == "" && d.Build == "" {
		return api.NewConfigError("service %q specifies neither image nor build", d.Name)
	}
	for _, link := range d.Links {
		if serviceNameOf(link) == d.Name {
			return api.SelfLinkError(d.Name)
		}
	}
	for _, vf := range d.VolumesFrom {
		if serviceNameOf(vf) == d.Name {
			return api.SelfVolumeError(d.Name)
		}
	}
	if _, err := parseRestartSpec(d.Restart); err != nil {
		return err
	}
	for _, v := range d.Volumes {
		if _, err := parseVolumeSpec(v); err != nil {
			return err
		}
	}
	for _, p := range d.Ports {
		if _, err := parsePortSpec(p); err != nil {
			return err
		}
	}
	return nil
}

// serviceNameOf extracts the service-name half of a "service[:suffix]" or
// "service:mode" style reference, ignoring any alias/mode after the colon.
func serviceNameOf(ref string) string {
	for i := 0; i < len(ref); i++ {
		if ref[i] == ':' {
			return ref[:i]
		}
	}
	return ref
}

// EffectiveScale returns d.Scale, defaulting to 1 when unset.
func (d *ServiceDeclaration) EffectiveScale() int {
	if d.Scale <= 0 {
		return 1
	}
	return d.Scale
}

// CanBeBuilt reports whether this service declares a build context.
func (d *ServiceDeclaration) CanBeBuilt() bool { return d.Build != "" }

// FullName is the image tag a built service's image carries: "{project}_{service}".
func (d *ServiceDeclaration) FullName(project string) string {
	if d.CanBeBuilt() {
		return fmt.Sprintf("%s_%s", project, d.Name)
	}
	return d.Image
}

// publishesHostPort reports whether any port spec binds to a host port,
// making the service ineligible for Scale (spec.md §3 invariant).
func (d *ServiceDeclaration) publishesHostPort() bool {
	for _, p := range d.Ports {
		spec, err := parsePortSpec(p)
		if err == nil && spec.HostPort != "" {
			return true
		}
	}
	return false
}

// CanBeScaled reports whether Scale() may run more than one instance.
func (d *ServiceDeclaration) CanBeScaled() bool {
	return !d.publishesHostPort()
}
