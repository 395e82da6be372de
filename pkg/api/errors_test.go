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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineErrorRecoveryPredicates(t *testing.T) {
	noImage := WrapEngineError(errors.New("boom"), 404, "No such image: foo:latest")
	ee, ok := AsEngineError(noImage)
	assert.True(t, ok)
	assert.True(t, ee.IsNoSuchImage())
	assert.False(t, ee.IsNoSuchProcess())

	noProcess := WrapEngineError(errors.New("boom"), 500, "Cannot stop container: no such process")
	ee, ok = AsEngineError(noProcess)
	assert.True(t, ok)
	assert.True(t, ee.IsNoSuchProcess())
	assert.False(t, ee.IsNoSuchImage())
}

func TestWrapEngineErrorNilIsNil(t *testing.T) {
	assert.Nil(t, WrapEngineError(nil, 0, ""))
}

func TestDependencyErrorMessages(t *testing.T) {
	assert.Equal(t, "A service can not link to itself: web", SelfLinkError("web").Error())
	assert.Equal(t, "A service can not mount itself as volume: web", SelfVolumeError("web").Error())
	assert.Equal(t, "Circular import between a and b", CircularDependencyError([]string{"a", "b"}).Error())
}

func TestNoSuchServiceError(t *testing.T) {
	err := &NoSuchServiceError{Name: "web"}
	assert.Equal(t, "No such service: web", err.Error())
}
