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
	"sort"

	"github.com/compose-engine/compose/pkg/api"
)

// Containers is a queryable collection of engine containers, mirroring the
// teacher's pkg/compose/containers.go helper type.
type Containers []api.Container

// oneOffFilter selects which containers a label-query includes by their
// one-off status.
type oneOffFilter int

const (
	oneOffExclude oneOffFilter = iota
	oneOffInclude
	oneOffOnly
)

func (cs Containers) filter(pred func(api.Container) bool) Containers {
	var out Containers
	for _, c := range cs {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// sorted returns cs ordered by container-number label ascending, falling
// back to name when the label is absent or malformed.
func (cs Containers) sorted() Containers {
	out := make(Containers, len(cs))
	copy(out, cs)
	sort.SliceStable(out, func(i, j int) bool {
		ni, oki := containerNumber(out[i])
		nj, okj := containerNumber(out[j])
		if oki && okj {
			return ni < nj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func containerNumber(c api.Container) (int, bool) {
	v, ok := c.Labels[api.ContainerNumberLabel]
	if !ok {
		return 0, false
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func isService(project, service string) func(api.Container) bool {
	return func(c api.Container) bool {
		return c.Labels[api.ProjectLabel] == project && c.Labels[api.ServiceLabel] == service
	}
}

func isRunning(c api.Container) bool { return c.IsRunning() }

func isOneOff(want oneOffFilter) func(api.Container) bool {
	return func(c api.Container) bool {
		oneOff := c.Labels[api.OneoffLabel] == "True"
		switch want {
		case oneOffOnly:
			return oneOff
		case oneOffExclude:
			return !oneOff
		default:
			return true
		}
	}
}
