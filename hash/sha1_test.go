// Copyright 2020 Fugue, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA1String(t *testing.T) {

	h := SHA1()
	sum, err := h.String("hello")
	require.Nil(t, err)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", sum)
}

func TestSHA1Object(t *testing.T) {

	h := SHA1()
	sum1, err := h.Object(map[string]string{"rule": "align"})
	require.Nil(t, err)
	sum2, err := h.Object(map[string]string{"rule": "align"})
	require.Nil(t, err)
	sum3, err := h.Object(map[string]string{"rule": "sort"})
	require.Nil(t, err)

	assert.Equal(t, sum1, sum2)
	assert.NotEqual(t, sum1, sum3)
	assert.Len(t, sum1, 40)
}
