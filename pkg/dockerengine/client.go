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

// Package dockerengine is the concrete api.EngineClient built on the real
// Moby SDK (github.com/docker/docker/client), the way
// pkg/compose/cli.go wires composeService to dockerCli.Client() in the
// teacher repo.
package dockerengine

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/compose-engine/compose/pkg/api"
)

// Client adapts *client.Client to api.EngineClient.
type Client struct {
	cli *client.Client
}

var _ api.EngineClient = (*Client)(nil)

// New connects to the engine using the standard DOCKER_HOST/DOCKER_CERT_PATH
// environment, negotiating the API version the way the teacher's CLI does.
func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Client{cli: cli}, nil
}

func (c *Client) ListContainers(ctx context.Context, all bool, labelFilter []string) ([]api.Container, error) {
	args := filters.NewArgs()
	for _, f := range labelFilter {
		args.Add("label", f)
	}
	summaries, err := c.cli.ContainerList(ctx, containertypes.ListOptions{All: all, Filters: args})
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]api.Container, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, toContainer(s.ID, s.Names, s.Labels, s.State, s.Created))
	}
	return out, nil
}

func (c *Client) Inspect(ctx context.Context, id string) (api.Container, error) {
	inspect, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return api.Container{}, wrapErr(err)
	}
	state := ""
	if inspect.State != nil {
		state = inspect.State.Status
	}
	name := strings.TrimPrefix(inspect.Name, "/")
	return api.Container{
		ID:     inspect.ID,
		Name:   name,
		Labels: inspect.Config.Labels,
		State:  state,
	}, nil
}

func toContainer(id string, names []string, labels map[string]string, state string, created int64) api.Container {
	name := id
	if len(names) > 0 {
		name = strings.TrimPrefix(names[0], "/")
	}
	return api.Container{ID: id, Name: name, Labels: labels, State: state, Created: created}
}

func (c *Client) Create(ctx context.Context, opts api.CreateOptions) (string, error) {
	containerCfg := &containertypes.Config{
		Hostname:     opts.Container.Hostname,
		Domainname:   opts.Container.Domainname,
		Env:          opts.Container.Env,
		Image:        opts.Container.Image,
		Labels:       opts.Container.Labels,
		ExposedPorts: opts.Container.ExposedPorts,
		Volumes:      opts.Container.Volumes,
	}
	var restart containertypes.RestartPolicy
	if opts.Host.RestartPolicy != nil {
		restart = containertypes.RestartPolicy{
			Name:              containertypes.RestartPolicyMode(opts.Host.RestartPolicy.Name),
			MaximumRetryCount: opts.Host.RestartPolicy.MaximumRetryCount,
		}
	}
	hostCfg := &containertypes.HostConfig{
		Links:         opts.Host.Links,
		PortBindings:  opts.Host.PortBindings,
		Binds:         opts.Host.Binds,
		VolumesFrom:   opts.Host.VolumesFrom,
		NetworkMode:   containertypes.NetworkMode(opts.Host.NetworkMode),
		DNS:           opts.Host.DNS,
		DNSSearch:     opts.Host.DNSSearch,
		RestartPolicy: restart,
		CapAdd:        opts.Host.CapAdd,
		CapDrop:       opts.Host.CapDrop,
		LogConfig:     containertypes.LogConfig{Type: opts.Host.LogConfig.Type},
		ExtraHosts:    extraHostsList(opts.Host.ExtraHosts),
		ReadonlyRootfs: opts.Host.ReadOnly,
		PidMode:       containertypes.PidMode(opts.Host.PidMode),
		Privileged:    opts.Host.Privileged,
	}

	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, opts.Container.Name)
	if err != nil {
		return "", wrapErr(err)
	}
	return resp.ID, nil
}

func extraHostsList(hosts map[string]string) []string {
	if len(hosts) == 0 {
		return nil
	}
	out := make([]string, 0, len(hosts))
	for host, ip := range hosts {
		out = append(out, host+":"+ip)
	}
	return out
}

func (c *Client) Start(ctx context.Context, id string) error {
	return wrapErr(c.cli.ContainerStart(ctx, id, containertypes.StartOptions{}))
}

func (c *Client) Stop(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	return wrapErr(c.cli.ContainerStop(ctx, id, containertypes.StopOptions{Timeout: &secs}))
}

func (c *Client) Kill(ctx context.Context, id string) error {
	return wrapErr(c.cli.ContainerKill(ctx, id, "SIGKILL"))
}

func (c *Client) Restart(ctx context.Context, id string) error {
	return wrapErr(c.cli.ContainerRestart(ctx, id, containertypes.StopOptions{}))
}

func (c *Client) Rename(ctx context.Context, id, newName string) error {
	return wrapErr(c.cli.ContainerRename(ctx, id, newName))
}

func (c *Client) Remove(ctx context.Context, id string, opts api.RemoveOptions) error {
	return wrapErr(c.cli.ContainerRemove(ctx, id, dockertypes.ContainerRemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
	}))
}

func (c *Client) Pull(ctx context.Context, repo, tag string, insecureRegistry bool) (api.EventStream, error) {
	ref := repo + ":" + tag
	rc, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return nil, wrapErr(err)
	}
	return newJSONStream(rc), nil
}

func (c *Client) Build(ctx context.Context, contextPath, tag, dockerfile string, noCache bool) (api.EventStream, error) {
	buildCtx, err := tarContext(contextPath)
	if err != nil {
		return nil, err
	}
	defer buildCtx.Close()
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	resp, err := c.cli.ImageBuild(ctx, buildCtx, dockertypes.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: dockerfile,
		NoCache:    noCache,
		Remove:     true,
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return newJSONStream(resp.Body), nil
}

func (c *Client) Images(ctx context.Context, reference string) ([]api.Image, error) {
	args := filters.NewArgs()
	if reference != "" {
		args.Add("reference", reference)
	}
	imgs, err := c.cli.ImageList(ctx, dockertypes.ImageListOptions{Filters: args})
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]api.Image, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, api.Image{ID: img.ID, Tags: img.RepoTags})
	}
	return out, nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	v, err := c.cli.ServerVersion(ctx)
	if err != nil {
		return "", wrapErr(err)
	}
	return v.Version, nil
}

// wrapErr classifies a Moby SDK error into an *api.EngineError carrying the
// status code spec.md §7's recovery paths key off (404 "No such image", 500
// "no such process"), the way pkg/compose translates errdefs-classified
// engine failures.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errdefs.IsNotFound(err):
		return api.WrapEngineError(err, 404, err.Error())
	case errdefs.IsConflict(err):
		return api.WrapEngineError(err, 409, err.Error())
	default:
		return api.WrapEngineError(err, 500, err.Error())
	}
}

// jsonStream decodes a pull/build response body into api.Event values,
// mirroring the manual jsonmessage.JSONMessage decode loop in
// pkg/compose/pull.go and build_classic.go.
type jsonStream struct {
	rc  io.ReadCloser
	dec *json.Decoder
}

func newJSONStream(rc io.ReadCloser) *jsonStream {
	return &jsonStream{rc: rc, dec: json.NewDecoder(bufio.NewReader(rc))}
}

type rawJSONMessage struct {
	Stream string `json:"stream"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (s *jsonStream) Next() (api.Event, bool, error) {
	var msg rawJSONMessage
	if err := s.dec.Decode(&msg); err != nil {
		if err == io.EOF {
			return api.Event{}, false, nil
		}
		return api.Event{}, false, err
	}
	text := msg.Stream
	if text == "" {
		text = msg.Status
	}
	return api.Event{Stream: text, Error: msg.Error}, true, nil
}

func (s *jsonStream) Close() error { return s.rc.Close() }
