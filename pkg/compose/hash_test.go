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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceFingerprintStableAcrossBuildPath(t *testing.T) {
	base := &ServiceDeclaration{Name: "web", Image: "nginx:1.21", Build: "./web"}
	changedBuild := &ServiceDeclaration{Name: "web", Image: "nginx:1.21", Build: "./web-v2"}

	h1, err := ServiceFingerprint(base)
	require.NoError(t, err)
	h2, err := ServiceFingerprint(changedBuild)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "a changed build context path must not affect the fingerprint")
}

func TestServiceFingerprintChangesWithImage(t *testing.T) {
	base := &ServiceDeclaration{Name: "web", Image: "nginx:1.21"}
	changed := &ServiceDeclaration{Name: "web", Image: "nginx:1.22"}

	h1, err := ServiceFingerprint(base)
	require.NoError(t, err)
	h2, err := ServiceFingerprint(changed)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}
