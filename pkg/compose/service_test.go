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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-engine/compose/pkg/api"
	"github.com/compose-engine/compose/pkg/compose/enginefake"
)

func TestServicePullRejectsInvalidReference(t *testing.T) {
	client := &enginefake.Client{}
	web := &ServiceDeclaration{Name: "web", Image: "UPPERCASE_NOT_ALLOWED"}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	err = p.Services["web"].Pull(context.Background(), false)
	var cfgErr *api.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestServicePullSurfacesStreamError(t *testing.T) {
	client := &enginefake.Client{PullEvents: []api.Event{{Error: "manifest unknown"}}}
	web := &ServiceDeclaration{Name: "web", Image: "nginx:1.21"}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	err = p.Services["web"].Pull(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest unknown")
}

func TestServiceBuildRequiresSuccessLine(t *testing.T) {
	client := &enginefake.Client{BuildEvents: []api.Event{{Stream: "Step 1/1 : FROM busybox"}}}
	web := &ServiceDeclaration{Name: "web", Build: "./web"}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	_, err = p.Services["web"].Build(context.Background(), false)
	var buildErr *api.BuildError
	require.ErrorAs(t, err, &buildErr)
}

func TestServiceBuildReturnsImageID(t *testing.T) {
	client := &enginefake.Client{}
	web := &ServiceDeclaration{Name: "web", Build: "./web"}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	id, err := p.Services["web"].Build(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef0001", id)
}

func TestScaleStartsStoppedContainerWhenAtDesiredCount(t *testing.T) {
	client := &enginefake.Client{}
	web := &ServiceDeclaration{Name: "web", Image: "nginx"}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	labels := api.ContainerLabels(nil, "myapp", "web", 1, false)
	client.AddContainer(api.Container{ID: "stale1", Name: "myapp_web_1", Labels: labels, State: "exited"})

	require.NoError(t, p.Services["web"].Scale(context.Background(), 1))

	cs, err := p.Services["web"].Containers(context.Background(), oneOffExclude)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.True(t, cs[0].IsRunning(), "scale must start an existing stopped container instead of leaving it stopped")
}

func TestAnonymousVolumesFromDeclaredVolumes(t *testing.T) {
	client := &enginefake.Client{}
	web := &ServiceDeclaration{Name: "web", Image: "nginx", Volumes: []string{"/data", "/host/path:/var/lib/data:ro"}}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	volumes, err := p.Services["web"].anonymousVolumes()
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"/data": {}, "/var/lib/data": {}}, volumes)
}

func TestGetLinksFormatsContainerAlias(t *testing.T) {
	client := &enginefake.Client{}
	db := &ServiceDeclaration{Name: "db", Image: "postgres"}
	web := &ServiceDeclaration{Name: "web", Image: "nginx", Links: []string{"db:database"}}
	p, err := NewProject("myapp", []*ServiceDeclaration{web, db}, client)
	require.NoError(t, err)

	require.NoError(t, p.Up(context.Background(), UpOptions{AllowRecreate: true}))

	links, err := p.Services["web"].getLinks(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, []string{
		"myapp_db_1:database",
		"myapp_db_1:myapp_db_1",
		"myapp_db_1:db_1",
	}, links)
}

func TestGetLinksWithLinkToSelfIncludesOwnContainers(t *testing.T) {
	client := &enginefake.Client{}
	web := &ServiceDeclaration{Name: "web", Image: "nginx"}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	require.NoError(t, p.Up(context.Background(), UpOptions{AllowRecreate: true}))

	links, err := p.Services["web"].getLinks(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, []string{
		"myapp_web_1:web",
		"myapp_web_1:myapp_web_1",
		"myapp_web_1:web_1",
	}, links)
}
