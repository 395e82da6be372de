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
	"strings"

	"github.com/compose-engine/compose/pkg/api"
)

// SortServices orders decls so that every service appears before every
// other service that depends on it via links, volumes_from, or net
// (spec.md §4.E). It is a direct port of original_source/compose/project.py
// ::sort_service_dicts, a Tarjan-style DFS over the "depends on me" edge set
// with three-way cycle classification.
func SortServices(decls []*ServiceDeclaration) ([]*ServiceDeclaration, error) {
	unmarked := make(map[string]*ServiceDeclaration, len(decls))
	for _, d := range decls {
		unmarked[d.Name] = d
	}

	var tempMarked []string // ordered, for deterministic cycle messages
	tempSet := map[string]bool{}

	var sorted []*ServiceDeclaration

	var visit func(n *ServiceDeclaration) error
	visit = func(n *ServiceDeclaration) error {
		if tempSet[n.Name] {
			if linksToSelf(n) {
				return api.SelfLinkError(n.Name)
			}
			if mountsSelf(n) {
				return api.SelfVolumeError(n.Name)
			}
			return api.CircularDependencyError(tempMarked)
		}
		if _, stillUnmarked := unmarked[n.Name]; !stillUnmarked {
			return nil
		}

		tempSet[n.Name] = true
		tempMarked = append(tempMarked, n.Name)

		for _, m := range dependents(n, decls) {
			if err := visit(m); err != nil {
				return err
			}
		}

		delete(tempSet, n.Name)
		tempMarked = tempMarked[:len(tempMarked)-1]
		delete(unmarked, n.Name)
		sorted = append([]*ServiceDeclaration{n}, sorted...)
		return nil
	}

	for _, d := range decls {
		if _, stillUnmarked := unmarked[d.Name]; stillUnmarked {
			if err := visit(d); err != nil {
				return nil, err
			}
		}
	}
	return sorted, nil
}

// dependents returns every declaration in all that depends on n: one whose
// links, volumes_from, or net names n as a service.
func dependents(n *ServiceDeclaration, all []*ServiceDeclaration) []*ServiceDeclaration {
	var out []*ServiceDeclaration
	for _, svc := range all {
		if dependsOn(svc, n.Name) {
			out = append(out, svc)
		}
	}
	return out
}

func dependsOn(svc *ServiceDeclaration, target string) bool {
	for _, link := range svc.Links {
		if serviceNameOf(link) == target {
			return true
		}
	}
	for _, vf := range svc.VolumesFrom {
		if name, ok := volumesFromServiceName(vf); ok && name == target {
			return true
		}
	}
	if name, ok := netServiceName(svc.Net); ok && name == target {
		return true
	}
	return false
}

func linksToSelf(n *ServiceDeclaration) bool {
	for _, link := range n.Links {
		if serviceNameOf(link) == n.Name {
			return true
		}
	}
	return false
}

func mountsSelf(n *ServiceDeclaration) bool {
	for _, vf := range n.VolumesFrom {
		if name, ok := volumesFromServiceName(vf); ok && name == n.Name {
			return true
		}
	}
	return false
}

// volumesFromServiceName extracts the service name from a volumes_from
// entry, returning ok=false for a "container:<id>[:mode]" reference, which
// names a container directly and carries no service-level dependency edge.
func volumesFromServiceName(ref string) (string, bool) {
	if strings.HasPrefix(ref, "container:") {
		return "", false
	}
	return serviceNameOf(ref), true
}

// netServiceName extracts the service name from a "service:<name>" net
// declaration; any other form (bridge/host/none/container:<id>, or empty)
// carries no service-level dependency edge.
func netServiceName(net string) (string, bool) {
	const prefix = "service:"
	if strings.HasPrefix(net, prefix) {
		return strings.TrimPrefix(net, prefix), true
	}
	return "", false
}
