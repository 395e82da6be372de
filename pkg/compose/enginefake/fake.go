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

// Package enginefake provides a hand-written in-memory api.EngineClient for
// tests, standing in for a live engine the way the teacher's unit tests
// drive composeService against a fake API client (SPEC_FULL.md §2.4).
package enginefake

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/compose-engine/compose/pkg/api"
)

// Client is an in-memory api.EngineClient. The zero value is ready to use.
type Client struct {
	mu         sync.Mutex
	containers map[string]*api.Container
	nextID     int

	// BuildEvents/PullEvents, if set, are returned verbatim by every
	// Build/Pull call instead of the default success stream.
	BuildEvents []api.Event
	PullEvents  []api.Event

	// Images lets tests pre-populate what Images() reports.
	Images_ []api.Image
}

var _ api.EngineClient = (*Client)(nil)

func (c *Client) init() {
	if c.containers == nil {
		c.containers = map[string]*api.Container{}
	}
}

func (c *Client) ListContainers(_ context.Context, all bool, labelFilter []string) ([]api.Container, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	var out []api.Container
	for _, ct := range c.containers {
		if !all && !ct.IsRunning() {
			continue
		}
		if matchesFilters(*ct, labelFilter) {
			out = append(out, *ct)
		}
	}
	return out, nil
}

func matchesFilters(c api.Container, filters []string) bool {
	for _, f := range filters {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if c.Labels[parts[0]] != parts[1] {
			return false
		}
	}
	return true
}

func (c *Client) Inspect(_ context.Context, id string) (api.Container, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	ct, ok := c.containers[id]
	if !ok {
		return api.Container{}, api.WrapEngineError(fmt.Errorf("no such container"), 404, "No such container: "+id)
	}
	return *ct, nil
}

func (c *Client) Create(_ context.Context, opts api.CreateOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	c.nextID++
	id := "fake" + strconv.Itoa(c.nextID)
	c.containers[id] = &api.Container{
		ID:      id,
		Name:    opts.Container.Name,
		Labels:  opts.Container.Labels,
		State:   "created",
		Created: int64(c.nextID),
	}
	return id, nil
}

func (c *Client) Start(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	ct, ok := c.containers[id]
	if !ok {
		return api.WrapEngineError(fmt.Errorf("no such container"), 404, "No such container: "+id)
	}
	ct.State = "running"
	return nil
}

func (c *Client) Stop(_ context.Context, id string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	ct, ok := c.containers[id]
	if !ok {
		return api.WrapEngineError(fmt.Errorf("no such container"), 404, "No such container: "+id)
	}
	ct.State = "exited"
	return nil
}

func (c *Client) Kill(ctx context.Context, id string) error { return c.Stop(ctx, id, 0) }

func (c *Client) Restart(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	ct, ok := c.containers[id]
	if !ok {
		return api.WrapEngineError(fmt.Errorf("no such container"), 404, "No such container: "+id)
	}
	ct.State = "running"
	return nil
}

func (c *Client) Rename(_ context.Context, id, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	ct, ok := c.containers[id]
	if !ok {
		return api.WrapEngineError(fmt.Errorf("no such container"), 404, "No such container: "+id)
	}
	ct.Name = newName
	return nil
}

func (c *Client) Remove(_ context.Context, id string, _ api.RemoveOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	delete(c.containers, id)
	return nil
}

func (c *Client) Pull(_ context.Context, _, _ string, _ bool) (api.EventStream, error) {
	events := c.PullEvents
	if events == nil {
		events = []api.Event{{Stream: "Status: Image is up to date"}}
	}
	return &staticStream{events: events}, nil
}

func (c *Client) Build(_ context.Context, _, tag, _ string, _ bool) (api.EventStream, error) {
	events := c.BuildEvents
	if events == nil {
		events = []api.Event{{Stream: "Successfully built deadbeef0001"}, {Stream: "Successfully tagged " + tag}}
	}
	return &staticStream{events: events}, nil
}

func (c *Client) Images(_ context.Context, reference string) ([]api.Image, error) {
	if reference == "" {
		return c.Images_, nil
	}
	var out []api.Image
	for _, img := range c.Images_ {
		for _, t := range img.Tags {
			if t == reference {
				out = append(out, img)
			}
		}
	}
	return out, nil
}

func (c *Client) Version(_ context.Context) (string, error) { return "fake-engine/1.0.0", nil }

// AddContainer lets a test seed a pre-existing container directly.
func (c *Client) AddContainer(ct api.Container) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	cp := ct
	c.containers[ct.ID] = &cp
}

type staticStream struct {
	events []api.Event
	pos    int
}

func (s *staticStream) Next() (api.Event, bool, error) {
	if s.pos >= len(s.events) {
		return api.Event{}, false, nil
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, true, nil
}

func (s *staticStream) Close() error { return nil }
