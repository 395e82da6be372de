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
	"strconv"
	"strings"

	"github.com/compose-engine/compose/pkg/api"
)

// volumeSpec is the parsed form of a `volumes` entry (spec.md §4.C).
type volumeSpec struct {
	External string // empty for an anonymous volume
	Internal string
	Mode     string // "rw" or "ro"
}

// parseVolumeSpec parses "[external:]internal[:mode]".
func parseVolumeSpec(s string) (volumeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return volumeSpec{}, api.NewConfigError("volume %q has incorrect format, should be external:internal[:mode]", s)
	}
	switch len(parts) {
	case 1:
		return volumeSpec{Internal: parts[0], Mode: "rw"}, nil
	case 2:
		parts = append(parts, "rw")
	}
	external, internal, mode := parts[0], parts[1], parts[2]
	if mode != "rw" && mode != "ro" {
		return volumeSpec{}, api.NewConfigError("volume %q has invalid mode %q, should be rw or ro", s, mode)
	}
	return volumeSpec{External: external, Internal: internal, Mode: mode}, nil
}

// portSpec is the parsed form of a `ports` entry (spec.md §4.C).
type portSpec struct {
	HostIP        string
	HostPort      string
	ContainerPort string
	Proto         string // "tcp" or "udp"
}

// parsePortSpec parses "[[host_ip:]host_port:]container_port[/proto]".
func parsePortSpec(s string) (portSpec, error) {
	proto := "tcp"
	rest := s
	if i := strings.LastIndex(s, "/"); i >= 0 {
		rest, proto = s[:i], s[i+1:]
		if proto != "tcp" && proto != "udp" {
			return portSpec{}, api.NewConfigError("port %q has invalid protocol %q", s, proto)
		}
	}
	parts := strings.Split(rest, ":")
	switch len(parts) {
	case 1:
		return portSpec{ContainerPort: parts[0], Proto: proto}, nil
	case 2:
		return portSpec{HostPort: parts[0], ContainerPort: parts[1], Proto: proto}, nil
	case 3:
		return portSpec{HostIP: parts[0], HostPort: parts[1], ContainerPort: parts[2], Proto: proto}, nil
	default:
		return portSpec{}, api.NewConfigError(
			`port %q is invalid, should be [[host_ip:]host_port:]container_port[/proto]`, s)
	}
}

// parseRepositoryTag splits a "repo[:tag]" or "repo[@digest]" reference the
// way original_source/compose/service.py::parse_repository_tag does:
// a trailing "@digest" always wins; otherwise the tag is only split off the
// last ':' group if that group contains no '/' (so "host:5000/name" is not
// mistaken for a tag).
func parseRepositoryTag(ref string) (repo, tag string) {
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	i := strings.LastIndex(ref, ":")
	if i < 0 {
		return ref, ""
	}
	if strings.Contains(ref[i+1:], "/") {
		return ref, ""
	}
	return ref[:i], ref[i+1:]
}

// parseRestartSpec parses "name[:max_retry]" into an *api.RestartPolicy.
// An empty spec returns (nil, nil): no restart policy at all.
func parseRestartSpec(s string) (*api.RestartPolicy, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) > 2 {
		return nil, api.NewConfigError("restart spec %q has incorrect format, should be name[:max_retry]", s)
	}
	name := parts[0]
	retry := 0
	if len(parts) == 2 {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, api.NewConfigError("restart spec %q has a non-numeric max_retry", s)
		}
		retry = n
	}
	return &api.RestartPolicy{Name: name, MaximumRetryCount: retry}, nil
}

// buildExtraHosts normalizes an `extra_hosts` declaration, which may be
// authored as a "host:ip" list or a host->ip mapping (spec.md §4.C), into a
// single host->ip map.
func buildExtraHosts(raw interface{}) (map[string]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return v, nil
	case []string:
		hosts := make(map[string]string, len(v))
		for _, entry := range v {
			parts := strings.SplitN(entry, ":", 2)
			if len(parts) != 2 {
				return nil, api.NewConfigError("extra_hosts entry %q should be host:ip", entry)
			}
			hosts[parts[0]] = parts[1]
		}
		return hosts, nil
	default:
		return nil, api.NewConfigError("extra_hosts must be a list of \"host:ip\" strings or a host->ip mapping")
	}
}
