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

// Package api defines the vocabulary shared by every other package in this
// module: the engine client contract, container identity, and the error
// taxonomy of spec.md §7.
package api

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ConfigError is raised for an invalid declaration: a bad name, both/neither
// image+build, or a malformed volume/port/restart/extra_hosts spec. Fatal to
// the command that triggered it.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// NewConfigError wraps a formatted message as a ConfigError.
func NewConfigError(format string, args ...interface{}) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError is raised when a cross-service reference (link,
// volumes_from, net) fails to resolve against a known service or an
// existing container.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// NewConfigurationError wraps a formatted message as a ConfigurationError.
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// DependencyError signals a cycle found during dependency sort. Unlike
// original_source/compose/project.py's
// `class DependencyError(ConfigurationError)`, it is a separate type here:
// errors.As with a *ConfigurationError target does not match it.
type DependencyError struct {
	Message string
}

func (e *DependencyError) Error() string { return e.Message }

// SelfLinkError builds the DependencyError for a service linking to itself.
func SelfLinkError(service string) error {
	return &DependencyError{Message: fmt.Sprintf("A service can not link to itself: %s", service)}
}

// SelfVolumeError builds the DependencyError for a service mounting its own volume.
func SelfVolumeError(service string) error {
	return &DependencyError{Message: fmt.Sprintf("A service can not mount itself as volume: %s", service)}
}

// CircularDependencyError builds the DependencyError for a generic cycle
// among the named services.
func CircularDependencyError(services []string) error {
	return &DependencyError{Message: fmt.Sprintf("Circular import between %s", strings.Join(services, " and "))}
}

// NoSuchServiceError is raised when a requested service name is absent from
// a project and all of its external projects.
type NoSuchServiceError struct {
	Name string
}

func (e *NoSuchServiceError) Error() string { return fmt.Sprintf("No such service: %s", e.Name) }

// CannotBeScaledError is raised by Scale on a service that publishes a
// host-side port (spec.md §3 invariant).
type CannotBeScaledError struct {
	Service string
}

func (e *CannotBeScaledError) Error() string {
	return fmt.Sprintf("service %q cannot be scaled because it publishes a host port", e.Service)
}

// BuildError is raised when a build stream never emits a "Successfully
// built <id>" line.
type BuildError struct {
	Service string
	Reason  string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("service %q failed to build: %s", e.Service, e.Reason)
}

// EngineError wraps any unrecovered failure reported by the engine client,
// carrying the status code and explanation the way a raw engine API error
// would (spec.md §7).
type EngineError struct {
	StatusCode  int
	Explanation string
	Err         error
}

func (e *EngineError) Error() string {
	if e.Explanation != "" {
		return fmt.Sprintf("engine error (%d): %s", e.StatusCode, e.Explanation)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("engine error (%d)", e.StatusCode)
}

func (e *EngineError) Unwrap() error { return e.Err }

// WrapEngineError wraps err, if any, into an EngineError carrying status and explanation.
func WrapEngineError(err error, statusCode int, explanation string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&EngineError{StatusCode: statusCode, Explanation: explanation, Err: err})
}

// IsNoSuchImage reports whether err is the 404 "No such image" condition
// §7 recovers from by pulling and retrying once.
func (e *EngineError) IsNoSuchImage() bool {
	return e.StatusCode == 404 && strings.Contains(e.Explanation, "No such image")
}

// IsNoSuchProcess reports whether err is the 500 "no such process"
// condition §7 swallows when stopping an already-stopped container.
func (e *EngineError) IsNoSuchProcess() bool {
	return e.StatusCode == 500 && strings.Contains(e.Explanation, "no such process")
}

// AsEngineError unwraps err looking for an *EngineError.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
