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
package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBasics(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	path := testFile(t, dir, "a.txt", "hello")

	f := NewFile(path, PatternFlags{})
	assert.True(t, f.Exists())
	assert.False(t, f.ModTime().IsZero())
	assert.True(t, f.IsNewer(f.ModTime().Add(-time.Second)))
	assert.False(t, f.IsNewer(f.ModTime()))

	missing := NewFile(filepath.Join(dir, "nope.txt"), PatternFlags{})
	assert.False(t, missing.Exists())
	assert.True(t, missing.ModTime().IsZero())
	assert.False(t, missing.IsNewer(time.Time{}))

	require.Nil(t, f.Remove())
	assert.False(t, f.Exists())
}

func TestFileProtect(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	path := testFile(t, dir, "a.txt", "hello")

	f := NewFile(path, PatternFlags{Protected: true})
	require.Nil(t, f.Protect())

	info, err := os.Stat(path)
	require.Nil(t, err)
	assert.Equal(t, os.FileMode(0), info.Mode().Perm()&0222)

	// Restore writability so cleanup succeeds
	os.Chmod(path, 0644)
}

func TestFileSet(t *testing.T) {

	a := NewFile("a.txt", PatternFlags{})
	b := NewFile("b.txt", PatternFlags{})
	c := NewFile("c.txt", PatternFlags{})

	s := NewFileSet(b, a)
	s.Add(c)
	s.Add(NewFile("a.txt", PatternFlags{}))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"b.txt", "a.txt", "c.txt"}, s.Paths())
	assert.True(t, s.Contains("a.txt"))

	s.Remove("a.txt")
	assert.False(t, s.Contains("a.txt"))
	assert.Equal(t, []string{"b.txt", "c.txt"}, s.Paths())

	other := NewFileSet(a)
	other.AddAll(s)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, other.Paths())
}
