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
	"encoding/json"

	"github.com/opencontainers/go-digest"
)

// hashableDeclaration is a copy of ServiceDeclaration with the fields that
// must never influence smart_recreate dropped: Build (a context path
// changing doesn't mean the built image changed) and Scale (scaling up/down
// doesn't make existing replicas stale).
type hashableDeclaration struct {
	Name        string
	Image       string
	Command     []string
	Entrypoint  []string
	Env         []string
	Labels      map[string]string
	Links       []string
	VolumesFrom []string
	Net         string
	Ports       []string
	Expose      []string
	Volumes     []string
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
}

// ServiceFingerprint returns the smart_recreate config-hash digest for a
// declaration: a SHA-256 of its JSON encoding with Build and Scale zeroed,
// matching the teacher's pkg/compose/hash.go::ServiceHash.
func ServiceFingerprint(d *ServiceDeclaration) (string, error) {
	h := hashableDeclaration{
		Name:        d.Name,
		Image:       d.Image,
		Command:     d.Command,
		Entrypoint:  d.Entrypoint,
		Env:         d.Env,
		Labels:      d.Labels,
		Links:       d.Links,
		VolumesFrom: d.VolumesFrom,
		Net:         d.Net,
		Ports:       d.Ports,
		Expose:      d.Expose,
		Volumes:     d.Volumes,
		ExtraHosts:  d.ExtraHosts,
		Restart:     d.Restart,
		DNS:         d.DNS,
		DNSSearch:   d.DNSSearch,
		CapAdd:      d.CapAdd,
		CapDrop:     d.CapDrop,
		Privileged:  d.Privileged,
		ReadOnly:    d.ReadOnly,
		PidMode:     d.PidMode,
		Hostname:    d.Hostname,
		Domainname:  d.Domainname,
		LogDriver:   d.LogDriver,
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return digest.SHA256.FromBytes(data).Encoded(), nil
}
