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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeProjectName(t *testing.T) {
	assert.Equal(t, "myproject123", NormalizeProjectName("My-Project_123"))
	assert.Equal(t, "abc123", NormalizeProjectName("ABC 123"))
	assert.Equal(t, "default", NormalizeProjectName("___"))
	assert.Equal(t, "default", NormalizeProjectName(""))
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "myapp_web_1", ContainerName("myapp", "web", 1, false))
	assert.Equal(t, "myapp_web_run_1", ContainerName("myapp", "web", 1, true))
}

func TestContainerLabels(t *testing.T) {
	labels := ContainerLabels(map[string]string{"custom": "x"}, "myapp", "web", 2, false)
	assert.Equal(t, "myapp", labels[ProjectLabel])
	assert.Equal(t, "web", labels[ServiceLabel])
	assert.Equal(t, "False", labels[OneoffLabel])
	assert.Equal(t, "2", labels[ContainerNumberLabel])
	assert.Equal(t, "x", labels["custom"])
	assert.Equal(t, Version, labels[VersionLabel])
}

func TestMatchesLegacyName(t *testing.T) {
	assert.True(t, MatchesLegacyName("myapp_web_1", "myapp", []string{"web"}, false))
	assert.True(t, MatchesLegacyName("myapp_web_run_3", "myapp", []string{"web"}, true))
	assert.False(t, MatchesLegacyName("myapp_web_1", "myapp", []string{"web"}, true))
	assert.False(t, MatchesLegacyName("otherapp_web_1", "myapp", []string{"web"}, false))
}

func TestParseLegacyName(t *testing.T) {
	project, service, oneOff, number, ok := ParseLegacyName("myapp_web_run_4")
	assert.True(t, ok)
	assert.Equal(t, "myapp", project)
	assert.Equal(t, "web", service)
	assert.True(t, oneOff)
	assert.Equal(t, 4, number)

	_, _, _, _, ok = ParseLegacyName("not-a-legacy-name")
	assert.False(t, ok)
}

func TestIsValidServiceName(t *testing.T) {
	assert.True(t, IsValidServiceName("web1"))
	assert.False(t, IsValidServiceName("web_1"))
	assert.False(t, IsValidServiceName(""))
}
