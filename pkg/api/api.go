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
	"context"
	"time"

	"github.com/docker/go-connections/nat"
)

// Container is the read-only view of a container as reported by the engine
// (spec.md §3 "Container (engine view, read-only within this system)").
type Container struct {
	ID      string
	Name    string
	Labels  map[string]string
	State   string // "running", "exited", "created", ...
	Created int64
}

// IsRunning reports whether the container's last observed state was "running".
func (c Container) IsRunning() bool { return c.State == "running" }

// ShortID is the 12-character prefix used when renaming a superseded
// container during recreate (spec.md §3 "Invariants").
func (c Container) ShortID() string {
	if len(c.ID) <= 12 {
		return c.ID
	}
	return c.ID[:12]
}

// LogConfig selects the logging driver for a created container.
type LogConfig struct {
	Type string
}

// RestartPolicy is the parsed form of a `restart` declaration (spec.md §4.C).
type RestartPolicy struct {
	Name              string
	MaximumRetryCount int
}

// CreateConfig is the subset of container-create parameters that persist on
// the container image/metadata (spec.md §4.D "Container parameter assembly").
// Start-time-only keys live on HostConfig instead.
type CreateConfig struct {
	Name         string
	Image        string
	Hostname     string
	Domainname   string
	Env          []string
	Labels       map[string]string
	ExposedPorts nat.PortSet
	Volumes      map[string]struct{}
}

// HostConfig is the subset of container-create parameters consumed only at
// start time; DOCKER_START_KEYS in the Python original (spec.md §4.D).
type HostConfig struct {
	Links         []string
	PortBindings  nat.PortMap
	Binds         []string
	VolumesFrom   []string
	NetworkMode   string
	DNS           []string
	DNSSearch     []string
	RestartPolicy *RestartPolicy
	CapAdd        []string
	CapDrop       []string
	LogConfig     LogConfig
	ExtraHosts    map[string]string
	ReadOnly      bool
	PidMode       string
	Privileged    bool
}

// CreateOptions groups the two structs an engine create call needs.
type CreateOptions struct {
	Container CreateConfig
	Host      HostConfig
}

// RemoveOptions controls ContainerRemove behavior.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// Event is one line of a streamed pull/build response (spec.md §9
// "Streaming engine outputs").
type Event struct {
	Stream string
	Error  string
}

// EventStream is drained to completion by the caller; see spec.md §5
// "Suspension / blocking".
type EventStream interface {
	Next() (Event, bool, error)
	Close() error
}

// Image is a minimal view of an engine-side image record.
type Image struct {
	ID   string
	Tags []string
}

// EngineClient is the abstract contract this module requires from the
// container engine (spec.md §4.A). A concrete adapter (e.g. pkg/dockerengine)
// supplies the real transport; the core never depends on it directly.
type EngineClient interface {
	// ListContainers returns every container carrying all of labelFilter's
	// "key=value" entries. all=false restricts to running containers.
	ListContainers(ctx context.Context, all bool, labelFilter []string) ([]Container, error)
	// Inspect returns the full record for a single container id.
	Inspect(ctx context.Context, id string) (Container, error)
	// Create creates (but does not start) a container, returning its id.
	Create(ctx context.Context, opts CreateOptions) (string, error)
	Start(ctx context.Context, id string) error
	// Stop sends a graceful stop with the given timeout.
	Stop(ctx context.Context, id string, timeout time.Duration) error
	Kill(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Rename(ctx context.Context, id, newName string) error
	Remove(ctx context.Context, id string, opts RemoveOptions) error
	// Pull streams a registry pull of repo:tag.
	Pull(ctx context.Context, repo, tag string, insecureRegistry bool) (EventStream, error)
	// Build streams an image build from the given context directory.
	Build(ctx context.Context, contextPath, tag, dockerfile string, noCache bool) (EventStream, error)
	// Images lists images, optionally filtered by exact reference.
	Images(ctx context.Context, reference string) ([]Image, error)
	Version(ctx context.Context) (string, error)
}
