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

package api

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// ProjectLabel tracks the project a container belongs to.
	ProjectLabel = "com.docker.compose.project"
	// ServiceLabel tracks the service a container was created for.
	ServiceLabel = "com.docker.compose.service"
	// OneoffLabel is "True" for containers created by `run` rather than `up`.
	OneoffLabel = "com.docker.compose.oneoff"
	// ContainerNumberLabel stores the 1-based instance index of a service.
	ContainerNumberLabel = "com.docker.compose.container-number"
	// ConfigHashLabel stores the smart_recreate fingerprint of the service
	// declaration that produced this container.
	ConfigHashLabel = "com.docker.compose.config-hash"
	// VersionLabel stores the engine-core version that created the container.
	VersionLabel = "com.docker.compose.version"
)

// Version is the value recorded in VersionLabel on every container this
// module creates. It has no bearing on wire compatibility; it is informational.
const Version = "1.0.0"

// Separator joins project/service/number into a container name.
const Separator = "_"

// ValidNameChars is the character class service and project names are
// restricted to (spec.md §3).
const ValidNameChars = "[A-Za-z0-9]"

var (
	serviceNameRe = regexp.MustCompile("^" + ValidNameChars + "+$")
	projectNameRe = regexp.MustCompile("^[a-z0-9]+$")
	legacyNameRe  = regexp.MustCompile(`^([^_]+)_([^_]+)_(run_)?(\d+)$`)
)

// IsValidServiceName reports whether name is a legal service/project-local name.
func IsValidServiceName(name string) bool {
	return serviceNameRe.MatchString(name)
}

// IsValidProjectName reports whether name is a legal, already-normalized project name.
func IsValidProjectName(name string) bool {
	return projectNameRe.MatchString(name)
}

// NormalizeProjectName lowercases s and strips every character outside
// [a-z0-9], defaulting to "default" when nothing is left (spec.md §6).
func NormalizeProjectName(s string) string {
	lowered := strings.ToLower(s)
	var b strings.Builder
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

// ContainerName formats the canonical name for a managed container
// (spec.md §3, §6): {project}_{service}[_run]_{number}.
func ContainerName(project, service string, number int, oneOff bool) string {
	bits := []string{project, service}
	if oneOff {
		bits = append(bits, "run")
	}
	bits = append(bits, strconv.Itoa(number))
	return strings.Join(bits, Separator)
}

// Labels returns the three base identity labels for a (project, service, one-off) tuple.
func Labels(project, service string, oneOff bool) map[string]string {
	return map[string]string{
		ProjectLabel: project,
		ServiceLabel: service,
		OneoffLabel:  oneOffString(oneOff),
	}
}

func oneOffString(oneOff bool) string {
	if oneOff {
		return "True"
	}
	return "False"
}

// LabelFilters renders the base labels as "key=value" filter strings
// suitable for an engine label-filter query.
func LabelFilters(project, service string, oneOff bool) []string {
	filters := []string{
		fmt.Sprintf("%s=%s", ProjectLabel, project),
	}
	if service != "" {
		filters = append(filters, fmt.Sprintf("%s=%s", ServiceLabel, service))
	}
	filters = append(filters, fmt.Sprintf("%s=%s", OneoffLabel, oneOffString(oneOff)))
	return filters
}

// ContainerLabels builds the full label set for a container create call:
// the three base labels, the caller-supplied custom labels, container-number
// and version (spec.md §4.D "Container parameter assembly").
func ContainerLabels(custom map[string]string, project, service string, number int, oneOff bool) map[string]string {
	labels := map[string]string{}
	for k, v := range custom {
		labels[k] = v
	}
	for k, v := range Labels(project, service, oneOff) {
		labels[k] = v
	}
	labels[ContainerNumberLabel] = strconv.Itoa(number)
	labels[VersionLabel] = Version
	return labels
}

// MatchesLegacyName reports whether name follows the pre-label naming
// convention "{project}_{service}_(run_)?{number}" for the given project and
// service set (spec.md §4.B, §4 of SPEC_FULL.md). Legacy containers are
// never treated as managed state, only flagged for a migration warning.
func MatchesLegacyName(name, project string, services []string, oneOff bool) bool {
	for _, service := range services {
		prefix := project + Separator + service + Separator
		if oneOff {
			prefix += "run" + Separator
		}
		rest := strings.TrimPrefix(name, prefix)
		if rest == name {
			continue
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return true
		}
	}
	return false
}

// ParseLegacyName splits a legacy container name back into its components,
// mirroring compose/cli/command.py's NAME_RE. ok is false if name doesn't
// match the legacy pattern at all.
func ParseLegacyName(name string) (project, service string, oneOff bool, number int, ok bool) {
	m := legacyNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", false, 0, false
	}
	n, err := strconv.Atoi(m[4])
	if err != nil {
		return "", "", false, 0, false
	}
	return m[1], m[2], m[3] != "", n, true
}
