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

func TestUpCreatesMissingContainer(t *testing.T) {
	client := &enginefake.Client{}
	web := &ServiceDeclaration{Name: "web", Image: "nginx"}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	err = p.Up(context.Background(), UpOptions{AllowRecreate: true})
	require.NoError(t, err)

	cs, err := p.Services["web"].Containers(context.Background(), oneOffExclude)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.True(t, cs[0].IsRunning())
}

func TestUpIsNoopWhenUnchangedAndSmartRecreate(t *testing.T) {
	client := &enginefake.Client{}
	web := &ServiceDeclaration{Name: "web", Image: "nginx"}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	opts := UpOptions{AllowRecreate: true, SmartRecreate: true}
	require.NoError(t, p.Up(context.Background(), opts))

	before, err := p.Services["web"].Containers(context.Background(), oneOffExclude)
	require.NoError(t, err)
	require.Len(t, before, 1)
	firstID := before[0].ID

	require.NoError(t, p.Up(context.Background(), opts))

	after, err := p.Services["web"].Containers(context.Background(), oneOffExclude)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, firstID, after[0].ID, "smart_recreate must not touch an unchanged, running container")
}

func TestUpRecreatesOnConfigChange(t *testing.T) {
	client := &enginefake.Client{}
	web := &ServiceDeclaration{Name: "web", Image: "nginx:1.20"}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	opts := UpOptions{AllowRecreate: true, SmartRecreate: true}
	require.NoError(t, p.Up(context.Background(), opts))

	before, err := p.Services["web"].Containers(context.Background(), oneOffExclude)
	require.NoError(t, err)
	firstID := before[0].ID

	p.Services["web"].Decl.Image = "nginx:1.21"
	require.NoError(t, p.Up(context.Background(), opts))

	after, err := p.Services["web"].Containers(context.Background(), oneOffExclude)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.NotEqual(t, firstID, after[0].ID, "a config-hash mismatch must recreate the container")
}

func TestPlannerCreatesWithoutContainerEvenWhenUpstreamRecreated(t *testing.T) {
	client := &enginefake.Client{}
	db := &ServiceDeclaration{Name: "db", Image: "postgres"}
	web := &ServiceDeclaration{Name: "web", Image: "nginx", Links: []string{"db"}}
	p, err := NewProject("myapp", []*ServiceDeclaration{web, db}, client)
	require.NoError(t, err)

	planner := &Planner{SmartRecreate: true, AllowRecreate: true}
	plan, err := planner.Plan(context.Background(), p.Services["db"], map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, plan.Action)

	plan, err = planner.Plan(context.Background(), p.Services["web"], map[string]bool{"db": true})
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, plan.Action, "web has no container yet so it is Created, not Recreated")
}

func TestPlannerUpstreamRecreateDoesNotBypassAllowRecreateFalse(t *testing.T) {
	client := &enginefake.Client{}
	db := &ServiceDeclaration{Name: "db", Image: "postgres"}
	web := &ServiceDeclaration{Name: "web", Image: "nginx", Links: []string{"db"}}
	p, err := NewProject("myapp", []*ServiceDeclaration{web, db}, client)
	require.NoError(t, err)
	require.NoError(t, p.Up(context.Background(), UpOptions{AllowRecreate: true}))

	planner := &Planner{SmartRecreate: true, AllowRecreate: false}
	plan, err := planner.Plan(context.Background(), p.Services["web"], map[string]bool{"db": true})
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, plan.Action, "an upstream recreate must never bypass AllowRecreate=false")
}

func TestCannotBeScaledWhenPublishingHostPort(t *testing.T) {
	web := &ServiceDeclaration{Name: "web", Image: "nginx", Ports: []string{"80:80"}}
	assert.False(t, web.CanBeScaled())

	client := &enginefake.Client{}
	p, err := NewProject("myapp", []*ServiceDeclaration{web}, client)
	require.NoError(t, err)

	err = p.Services["web"].Scale(context.Background(), 3)
	var scaleErr *api.CannotBeScaledError
	require.ErrorAs(t, err, &scaleErr)
}
