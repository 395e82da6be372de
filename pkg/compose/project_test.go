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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-engine/compose/pkg/api"
	"github.com/compose-engine/compose/pkg/compose/enginefake"
)

// orderRecordingClient wraps enginefake.Client to record the service each
// Stop call targeted, in call order, so tests can assert on iteration order
// without depending on timing.
type orderRecordingClient struct {
	*enginefake.Client
	mu    sync.Mutex
	order []string
}

func (o *orderRecordingClient) Stop(ctx context.Context, id string, timeout time.Duration) error {
	if ct, err := o.Client.Inspect(ctx, id); err == nil {
		o.mu.Lock()
		o.order = append(o.order, ct.Labels[api.ServiceLabel])
		o.mu.Unlock()
	}
	return o.Client.Stop(ctx, id, timeout)
}

func TestProjectNameFromEnv(t *testing.T) {
	t.Setenv("COMPOSE_PROJECT_NAME", "")
	t.Setenv("FIG_PROJECT_NAME", "")
	assert.Equal(t, "myapp", ProjectNameFromEnv("MyApp"))

	t.Setenv("COMPOSE_PROJECT_NAME", "Override-1")
	assert.Equal(t, "override1", ProjectNameFromEnv("MyApp"))
}

func TestNewProjectRejectsUnknownLink(t *testing.T) {
	web := &ServiceDeclaration{Name: "web", Image: "nginx", Links: []string{"db"}}
	_, err := NewProject("myapp", []*ServiceDeclaration{web}, &enginefake.Client{})
	require.Error(t, err)
}

func TestNewProjectOrdersServices(t *testing.T) {
	db := &ServiceDeclaration{Name: "db", Image: "postgres"}
	web := &ServiceDeclaration{Name: "web", Image: "nginx", Links: []string{"db"}}
	p, err := NewProject("myapp", []*ServiceDeclaration{web, db}, &enginefake.Client{})
	require.NoError(t, err)

	names := namesOf(p.order)
	assert.Less(t, indexOf(names, "db"), indexOf(names, "web"))
}

func TestGetServiceNamespaceFallback(t *testing.T) {
	db := &ServiceDeclaration{Name: "db", Image: "postgres"}
	p, err := NewProject("myapp", []*ServiceDeclaration{db}, &enginefake.Client{})
	require.NoError(t, err)

	s, err := p.GetService("myapp_db")
	require.NoError(t, err)
	assert.Equal(t, "db", s.Decl.Name)

	_, err = p.GetService("nope")
	assert.Error(t, err)
}

func TestStopIteratesInReverseDependencyOrder(t *testing.T) {
	client := &orderRecordingClient{Client: &enginefake.Client{}}
	db := &ServiceDeclaration{Name: "db", Image: "postgres"}
	web := &ServiceDeclaration{Name: "web", Image: "nginx", Links: []string{"db"}}
	p, err := NewProject("myapp", []*ServiceDeclaration{web, db}, client)
	require.NoError(t, err)
	require.NoError(t, p.Up(context.Background(), UpOptions{AllowRecreate: true}))

	client.order = nil
	require.NoError(t, p.Stop(context.Background(), nil, time.Second))
	assert.Equal(t, []string{"web", "db"}, client.order, "stop must visit dependents before their dependencies")
}

func TestGetServiceResolvesNamespaceQualifiedExternalReference(t *testing.T) {
	extDB := &ServiceDeclaration{Name: "db", Image: "postgres"}
	extProject, err := NewProject("other", []*ServiceDeclaration{extDB}, &enginefake.Client{})
	require.NoError(t, err)

	web := &ServiceDeclaration{Name: "web", Image: "nginx"}
	// "other_db" is looked up under Namespace + "other", i.e. "myappother".
	p, err := NewProjectWithNamespace("myapp", []*ServiceDeclaration{web}, &enginefake.Client{}, "",
		map[string]*Project{"myappother": extProject})
	require.NoError(t, err)

	s, err := p.GetService("other_db")
	require.NoError(t, err)
	assert.Equal(t, "db", s.Decl.Name)
	assert.Equal(t, "other", s.Project.Name)

	_, err = p.GetService("other_nope")
	assert.Error(t, err)
}

func TestGetServicesIncludeDeps(t *testing.T) {
	data := &ServiceDeclaration{Name: "data", Image: "busybox"}
	app := &ServiceDeclaration{Name: "app", Image: "busybox", VolumesFrom: []string{"data"}}
	web := &ServiceDeclaration{Name: "web", Image: "nginx", Links: []string{"app"}}
	p, err := NewProject("myapp", []*ServiceDeclaration{web, app, data}, &enginefake.Client{})
	require.NoError(t, err)

	services, err := p.GetServices([]string{"web"}, true)
	require.NoError(t, err)

	var names []string
	for _, s := range services {
		names = append(names, s.Decl.Name)
	}
	assert.Equal(t, []string{"data", "app", "web"}, names)
}
