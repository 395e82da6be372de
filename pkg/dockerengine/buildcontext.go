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

package dockerengine

import (
	"io"

	"github.com/docker/docker/pkg/archive"
)

// tarContext archives contextPath the way build_classic.go does for the
// classic (non-BuildKit) build path, excluding nothing beyond the tar
// defaults: compose-go's .dockerignore handling lives upstream of this
// engine-agnostic module.
func tarContext(contextPath string) (io.ReadCloser, error) {
	return archive.TarWithOptions(contextPath, &archive.TarOptions{})
}
