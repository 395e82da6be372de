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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/compose-engine/compose/pkg/api"
)

// defaultStopTimeout is applied when a caller doesn't specify one, matching
// the Docker engine's own default grace period.
const defaultStopTimeout = 10 * time.Second

// builtImageRe matches the "Successfully built <id>" line an engine build
// stream emits on completion (original_source/compose/service.py::build).
var builtImageRe = regexp.MustCompile(`Successfully built ([0-9a-f]+)`)

// Service is the runtime handle for one project service: it resolves the
// declaration's cross-service references against its owning Project and
// drives the container lifecycle calls of spec.md §4.D.
type Service struct {
	Project *Project
	Decl    *ServiceDeclaration
	Client  api.EngineClient
}

func newService(p *Project, d *ServiceDeclaration, client api.EngineClient) *Service {
	return &Service{Project: p, Decl: d, Client: client}
}

func (s *Service) log() *logrus.Entry {
	return logrus.WithField("project", s.Project.Name).WithField("service", s.Decl.Name)
}

// Containers returns every container belonging to this service, including
// one-off containers if requested, sorted by container-number.
func (s *Service) Containers(ctx context.Context, oneOff oneOffFilter) (Containers, error) {
	filters := api.LabelFilters(s.Project.Name, s.Decl.Name, oneOff == oneOffOnly)
	if oneOff == oneOffInclude {
		// drop the trailing one-off label filter so both kinds are listed
		filters = filters[:len(filters)-1]
	}
	raw, err := s.Client.ListContainers(ctx, true, filters)
	if err != nil {
		return nil, err
	}
	cs := Containers(raw).filter(isService(s.Project.Name, s.Decl.Name))
	if len(cs) == 0 {
		s.checkForLegacyContainers(ctx)
	}
	return cs.sorted(), nil
}

// checkForLegacyContainers scans every container in the project for a name
// matching the pre-label convention and logs a migration warning
// (supplemented feature, SPEC_FULL.md §4 — original_source/compose/
// service.py::check_for_legacy_containers).
func (s *Service) checkForLegacyContainers(ctx context.Context) {
	all, err := s.Client.ListContainers(ctx, true, nil)
	if err != nil {
		return
	}
	for _, c := range all {
		if api.MatchesLegacyName(c.Name, s.Project.Name, []string{s.Decl.Name}, false) {
			s.log().Warnf("Container %q was created without labels; "+
				"it will not be managed by this project until recreated", c.Name)
		}
	}
}

// Container returns the single running container at the given 1-based
// instance number (original_source/compose/service.py::get_container).
func (s *Service) Container(ctx context.Context, number int) (api.Container, error) {
	cs, err := s.Containers(ctx, oneOffExclude)
	if err != nil {
		return api.Container{}, err
	}
	for _, c := range cs {
		if n, ok := containerNumber(c); ok && n == number && c.IsRunning() {
			return c, nil
		}
	}
	return api.Container{}, api.NewConfigurationError("No container found for %s_%d", s.Decl.Name, number)
}

// nextContainerNumber returns one past the highest container-number label
// currently observed among this service's containers.
func (s *Service) nextContainerNumber(ctx context.Context) (int, error) {
	cs, err := s.Containers(ctx, oneOffExclude)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, c := range cs {
		if n, ok := containerNumber(c); ok && n > max {
			max = n
		}
	}
	return max + 1, nil
}

// Start starts every stopped container of this service.
func (s *Service) Start(ctx context.Context) error {
	cs, err := s.Containers(ctx, oneOffExclude)
	if err != nil {
		return err
	}
	for _, c := range cs {
		if err := s.startContainerIfStopped(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) startContainerIfStopped(ctx context.Context, c api.Container) error {
	if c.IsRunning() {
		return nil
	}
	s.log().Infof("Starting %s", c.Name)
	return s.Client.Start(ctx, c.ID)
}

// Stop stops every running container of this service, tolerating the
// "already stopped" 500 the engine returns for a concurrently-stopped
// container (spec.md §7).
func (s *Service) Stop(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	cs, err := s.Containers(ctx, oneOffExclude)
	if err != nil {
		return err
	}
	group, gctx := errgroup.WithContext(ctx)
	for _, c := range cs.filter(isRunning) {
		c := c
		group.Go(func() error {
			s.log().Infof("Stopping %s", c.Name)
			if err := s.Client.Stop(gctx, c.ID, timeout); err != nil {
				if ee, ok := api.AsEngineError(err); ok && ee.IsNoSuchProcess() {
					return nil
				}
				return err
			}
			return nil
		})
	}
	return group.Wait()
}

// Kill sends SIGKILL to every container of this service, concurrently.
func (s *Service) Kill(ctx context.Context) error {
	cs, err := s.Containers(ctx, oneOffExclude)
	if err != nil {
		return err
	}
	group, gctx := errgroup.WithContext(ctx)
	for _, c := range cs {
		c := c
		group.Go(func() error {
			s.log().Infof("Killing %s", c.Name)
			return s.Client.Kill(gctx, c.ID)
		})
	}
	return group.Wait()
}

// Restart restarts every container of this service, concurrently.
func (s *Service) Restart(ctx context.Context) error {
	cs, err := s.Containers(ctx, oneOffExclude)
	if err != nil {
		return err
	}
	group, gctx := errgroup.WithContext(ctx)
	for _, c := range cs {
		c := c
		group.Go(func() error {
			s.log().Infof("Restarting %s", c.Name)
			return s.Client.Restart(gctx, c.ID)
		})
	}
	return group.Wait()
}

// RemoveStopped removes every non-running container of this service.
func (s *Service) RemoveStopped(ctx context.Context) error {
	cs, err := s.Containers(ctx, oneOffExclude)
	if err != nil {
		return err
	}
	for _, c := range cs {
		if c.IsRunning() {
			continue
		}
		s.log().Infof("Removing %s", c.Name)
		if err := s.Client.Remove(ctx, c.ID, api.RemoveOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// scaleStopTimeout is the grace period scale-down uses when stopping excess
// running containers (spec.md §4.D step 4).
const scaleStopTimeout = 1 * time.Second

// Scale brings the number of running, non-one-off containers to desired,
// rejecting the request up front if the service publishes a host port
// (spec.md §3 invariant). Mirrors
// original_source/compose/service.py::Service.scale: create until the count
// is at least desired, partition into running/stopped, stop the
// highest-numbered running containers down to desired, start the
// lowest-numbered stopped containers up to desired, then remove whatever is
// still stopped.
func (s *Service) Scale(ctx context.Context, desired int) error {
	if !s.Decl.CanBeScaled() {
		return &api.CannotBeScaledError{Service: s.Decl.Name}
	}
	cs, err := s.Containers(ctx, oneOffExclude)
	if err != nil {
		return err
	}
	current := cs.sorted()
	for len(current) < desired {
		number, err := s.nextContainerNumber(ctx)
		if err != nil {
			return err
		}
		id, err := s.CreateContainer(ctx, number, false, nil)
		if err != nil {
			return err
		}
		c, err := s.Client.Inspect(ctx, id)
		if err != nil {
			return err
		}
		current = append(current, c)
	}

	var running, stopped Containers
	for _, c := range current {
		if c.IsRunning() {
			running = append(running, c)
		} else {
			stopped = append(stopped, c)
		}
	}
	running = running.sorted()
	stopped = stopped.sorted()

	for len(running) > desired {
		last := running[len(running)-1]
		running = running[:len(running)-1]
		s.log().Infof("Stopping %s", last.Name)
		if err := s.Client.Stop(ctx, last.ID, scaleStopTimeout); err != nil {
			return err
		}
		stopped = append(stopped, last)
	}
	for len(running) < desired && len(stopped) > 0 {
		first := stopped[0]
		stopped = stopped[1:]
		s.log().Infof("Starting %s", first.Name)
		if err := s.Client.Start(ctx, first.ID); err != nil {
			return err
		}
		running = append(running, first)
	}

	for _, c := range stopped {
		s.log().Infof("Removing %s", c.Name)
		if err := s.Client.Remove(ctx, c.ID, api.RemoveOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// Build triggers an image build for this service's build context and
// returns the resulting image id, requiring the stream to contain a
// "Successfully built <id>" line (spec.md §4.D, §7 BuildError).
func (s *Service) Build(ctx context.Context, noCache bool) (string, error) {
	if !s.Decl.CanBeBuilt() {
		return "", api.NewConfigError("service %q has no build context", s.Decl.Name)
	}
	tag := s.Decl.FullName(s.Project.Name)
	stream, err := s.Client.Build(ctx, s.Decl.Build, tag, "", noCache)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var imageID string
	re := builtImageRe
	for {
		ev, more, err := stream.Next()
		if err != nil {
			return "", err
		}
		if !more {
			break
		}
		if ev.Error != "" {
			return "", &api.BuildError{Service: s.Decl.Name, Reason: ev.Error}
		}
		s.log().Debug(ev.Stream)
		if m := re.FindStringSubmatch(ev.Stream); m != nil {
			imageID = m[1]
		}
	}
	if imageID == "" {
		return "", &api.BuildError{Service: s.Decl.Name, Reason: "stream ended without a \"Successfully built\" line"}
	}
	return imageID, nil
}

// Pull pulls this service's declared image, draining the stream for errors.
func (s *Service) Pull(ctx context.Context, insecureRegistry bool) error {
	repo, tag := parseRepositoryTag(s.Decl.Image)
	if tag == "" {
		tag = "latest"
	}
	if _, err := reference.ParseNormalizedNamed(repo); err != nil {
		return api.NewConfigError("service %q has an invalid image reference %q: %v", s.Decl.Name, s.Decl.Image, err)
	}
	stream, err := s.Client.Pull(ctx, repo, tag, insecureRegistry)
	if err != nil {
		return err
	}
	defer stream.Close()
	for {
		ev, more, err := stream.Next()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		if ev.Error != "" {
			return api.NewConfigurationError("pulling %q: %s", s.Decl.Image, ev.Error)
		}
	}
	return nil
}

// CreateContainer assembles container-create parameters for the given
// instance number and calls the engine, returning the new container's id.
// oneOff marks a `run`-style container, which also links to this service's
// own containers (spec.md §4.D build_links(link_to_self)). predecessor, if
// non-nil, is the container being superseded by a recreate: its anonymous
// volumes are inherited via VolumesFrom (spec.md §4.D, §4.H).
func (s *Service) CreateContainer(ctx context.Context, number int, oneOff bool, predecessor *api.Container) (string, error) {
	links, err := s.getLinks(ctx, oneOff)
	if err != nil {
		return "", err
	}
	volumesFrom, err := s.getVolumesFrom(ctx)
	if err != nil {
		return "", err
	}
	if predecessor != nil {
		volumesFrom = append(volumesFrom, predecessor.ID)
	}
	netMode, err := s.getNet(ctx)
	if err != nil {
		return "", err
	}
	restart, err := parseRestartSpec(s.Decl.Restart)
	if err != nil {
		return "", err
	}
	extraHosts, err := buildExtraHosts(s.Decl.ExtraHosts)
	if err != nil {
		return "", err
	}
	binds, err := s.volumeBindings()
	if err != nil {
		return "", err
	}
	volumes, err := s.anonymousVolumes()
	if err != nil {
		return "", err
	}
	exposed, bindings, err := s.portBindings()
	if err != nil {
		return "", err
	}

	name := api.ContainerName(s.Project.Name, s.Decl.Name, number, oneOff)
	labels := api.ContainerLabels(s.Decl.Labels, s.Project.Name, s.Decl.Name, number, oneOff)
	if hash, err := ServiceFingerprint(s.Decl); err == nil {
		labels[api.ConfigHashLabel] = hash
	}

	image := s.Decl.Image
	if s.Decl.CanBeBuilt() {
		image = s.Decl.FullName(s.Project.Name)
	}

	opts := api.CreateOptions{
		Container: api.CreateConfig{
			Name:         name,
			Image:        image,
			Hostname:     s.Decl.Hostname,
			Domainname:   s.Decl.Domainname,
			Env:          s.Decl.Env,
			Labels:       labels,
			ExposedPorts: exposed,
			Volumes:      volumes,
		},
		Host: api.HostConfig{
			Links:         links,
			PortBindings:  bindings,
			Binds:         binds,
			VolumesFrom:   volumesFrom,
			NetworkMode:   netMode,
			DNS:           s.Decl.DNS,
			DNSSearch:     s.Decl.DNSSearch,
			RestartPolicy: restart,
			CapAdd:        s.Decl.CapAdd,
			CapDrop:       s.Decl.CapDrop,
			LogConfig:     api.LogConfig{Type: s.Decl.LogDriver},
			ExtraHosts:    extraHosts,
			ReadOnly:      s.Decl.ReadOnly,
			PidMode:       s.Decl.PidMode,
			Privileged:    s.Decl.Privileged,
		},
	}

	s.log().Infof("Creating %s", name)
	id, err := s.Client.Create(ctx, opts)
	if err != nil {
		if ee, ok := api.AsEngineError(err); ok && ee.IsNoSuchImage() {
			if pullErr := s.Pull(ctx, false); pullErr != nil {
				return "", pullErr
			}
			return s.Client.Create(ctx, opts)
		}
		return "", err
	}
	return id, nil
}

// RecreateContainer implements the stop -> rename -> create -> start ->
// remove-predecessor protocol of spec.md §4.H, preserving the predecessor's
// container-number.
func (s *Service) RecreateContainer(ctx context.Context, predecessor api.Container) (string, error) {
	number, ok := containerNumber(predecessor)
	if !ok {
		return "", api.NewConfigurationError("container %q has no container-number label", predecessor.Name)
	}

	if predecessor.IsRunning() {
		s.log().Infof("Stopping %s", predecessor.Name)
		if err := s.Client.Stop(ctx, predecessor.ID, defaultStopTimeout); err != nil {
			if ee, ok := api.AsEngineError(err); !ok || !ee.IsNoSuchProcess() {
				return "", err
			}
		}
	}

	renamed := fmt.Sprintf("%s_%s", predecessor.ShortID(), predecessor.Name)
	s.log().Infof("Renaming %s to %s", predecessor.Name, renamed)
	if err := s.Client.Rename(ctx, predecessor.ID, renamed); err != nil {
		return "", err
	}

	id, err := s.CreateContainer(ctx, number, false, &predecessor)
	if err != nil {
		return "", err
	}
	if err := s.Client.Start(ctx, id); err != nil {
		return "", err
	}

	s.log().Infof("Removing %s", renamed)
	if err := s.Client.Remove(ctx, predecessor.ID, api.RemoveOptions{}); err != nil {
		s.log().Warnf("failed to remove superseded container %s: %v", renamed, err)
	}
	return id, nil
}

// getLinks resolves this service's `links` declarations, and — when
// linkToSelf is set for a one-off `run` container — this service's own
// containers, to host-config link entries. Ports
// original_source/compose/service.py::Service._get_links(link_to_self):
// for every running container of a linked service it emits the three
// triples (container_name, alias_or_service_name), (container_name,
// container_name), (container_name, name_without_project); linkToSelf
// additionally emits those triples for this service's own containers,
// keyed under this service's own name.
func (s *Service) getLinks(ctx context.Context, linkToSelf bool) ([]string, error) {
	var links []string
	for _, raw := range s.Decl.Links {
		target, alias := splitLink(raw)
		targetService, ok := s.Project.Services[target]
		if !ok {
			return nil, api.NewConfigurationError("Service %q has a link to %q which does not exist", s.Decl.Name, target)
		}
		if alias == "" {
			alias = target
		}
		cs, err := targetService.Containers(ctx, oneOffExclude)
		if err != nil {
			return nil, err
		}
		if len(cs) == 0 {
			return nil, api.NewConfigurationError("Service %q has no containers to link %q to", target, s.Decl.Name)
		}
		for _, c := range cs.filter(isRunning).sorted() {
			links = append(links, linkTriples(c, s.Project.Name, alias)...)
		}
	}
	if linkToSelf {
		cs, err := s.Containers(ctx, oneOffExclude)
		if err != nil {
			return nil, err
		}
		for _, c := range cs.filter(isRunning).sorted() {
			links = append(links, linkTriples(c, s.Project.Name, s.Decl.Name)...)
		}
	}
	return links, nil
}

// linkTriples renders the three host-config link entries build_links
// produces for one linked container: under alias (the declared alias, or
// the linked service's/self's name), under its own full name, and under its
// name with the "{project}_" prefix stripped.
func linkTriples(c api.Container, project, alias string) []string {
	nameWithoutProject := strings.TrimPrefix(c.Name, project+api.Separator)
	return []string{
		fmt.Sprintf("%s:%s", c.Name, alias),
		fmt.Sprintf("%s:%s", c.Name, c.Name),
		fmt.Sprintf("%s:%s", c.Name, nameWithoutProject),
	}
}

func splitLink(raw string) (target, alias string) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			return raw[:i], raw[i+1:]
		}
	}
	return raw, ""
}

// getVolumesFrom resolves `volumes_from` entries to engine VolumesFrom
// values: a literal pass-through for "container:<id>[:mode]", or the first
// container of the named service otherwise.
func (s *Service) getVolumesFrom(ctx context.Context) ([]string, error) {
	var out []string
	for _, raw := range s.Decl.VolumesFrom {
		if name, ok := volumesFromServiceName(raw); ok {
			targetService, exists := s.Project.Services[name]
			if !exists {
				return nil, api.NewConfigurationError("Service %q has volumes_from %q which does not exist", s.Decl.Name, name)
			}
			cs, err := targetService.Containers(ctx, oneOffExclude)
			if err != nil {
				return nil, err
			}
			if len(cs) == 0 {
				return nil, api.NewConfigurationError("Service %q has no containers to mount volumes from", name)
			}
			mode := "rw"
			if parts := splitMode(raw); parts != "" {
				mode = parts
			}
			out = append(out, fmt.Sprintf("%s:%s", cs.sorted()[0].Name, mode))
		} else {
			out = append(out, raw[len("container:"):])
		}
	}
	return out, nil
}

func splitMode(ref string) string {
	i := -1
	for j := 0; j < len(ref); j++ {
		if ref[j] == ':' {
			i = j
		}
	}
	if i < 0 {
		return ""
	}
	return ref[i+1:]
}

// getNet resolves the `net` declaration to an engine network-mode string.
func (s *Service) getNet(ctx context.Context) (string, error) {
	switch {
	case s.Decl.Net == "", s.Decl.Net == "bridge", s.Decl.Net == "host", s.Decl.Net == "none":
		return s.Decl.Net, nil
	case hasPrefixContainer(s.Decl.Net):
		return s.Decl.Net, nil
	}
	name, ok := netServiceName(s.Decl.Net)
	if !ok {
		return "", api.NewConfigError("service %q has invalid net %q", s.Decl.Name, s.Decl.Net)
	}
	targetService, exists := s.Project.Services[name]
	if !exists {
		return "", api.NewConfigurationError("Service %q has net %q which does not exist", s.Decl.Name, name)
	}
	cs, err := targetService.Containers(ctx, oneOffExclude)
	if err != nil {
		return "", err
	}
	if len(cs) == 0 {
		return "", api.NewConfigurationError("Service %q has no containers to join the network of", name)
	}
	return "container:" + cs.sorted()[0].ID, nil
}

func hasPrefixContainer(s string) bool {
	return len(s) > len("container:") && s[:len("container:")] == "container:"
}

// volumeBindings renders `volumes` declarations naming a host/external path
// into engine bind-mount strings; purely anonymous volumes are left for the
// engine to create implicitly and are not included here.
func (s *Service) volumeBindings() ([]string, error) {
	var binds []string
	for _, raw := range s.Decl.Volumes {
		spec, err := parseVolumeSpec(raw)
		if err != nil {
			return nil, err
		}
		if spec.External == "" {
			continue
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", spec.External, spec.Internal, spec.Mode))
	}
	return binds, nil
}

// anonymousVolumes returns the set of internal mount points declared by
// `volumes`, regardless of whether they name a host/external path — this is
// the image metadata's anonymous-volume set the engine create call expects
// in CreateConfig.Volumes (spec.md §4.D "Container parameter assembly").
func (s *Service) anonymousVolumes() (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for _, raw := range s.Decl.Volumes {
		spec, err := parseVolumeSpec(raw)
		if err != nil {
			return nil, err
		}
		out[spec.Internal] = struct{}{}
	}
	return out, nil
}

// portBindings renders `ports` declarations into the exposed-port set and
// host port-binding map the engine's nat package expects.
func (s *Service) portBindings() (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, raw := range s.Decl.Ports {
		spec, err := parsePortSpec(raw)
		if err != nil {
			return nil, nil, err
		}
		port, err := nat.NewPort(spec.Proto, spec.ContainerPort)
		if err != nil {
			return nil, nil, api.NewConfigError("port %q is invalid: %v", raw, err)
		}
		exposed[port] = struct{}{}
		if spec.HostPort != "" || spec.HostIP != "" {
			bindings[port] = append(bindings[port], nat.PortBinding{HostIP: spec.HostIP, HostPort: spec.HostPort})
		}
	}
	for _, raw := range s.Decl.Expose {
		spec, err := parsePortSpec(raw)
		if err != nil {
			return nil, nil, err
		}
		port, err := nat.NewPort(spec.Proto, spec.ContainerPort)
		if err != nil {
			return nil, nil, api.NewConfigError("expose %q is invalid: %v", raw, err)
		}
		exposed[port] = struct{}{}
	}
	return exposed, bindings, nil
}
