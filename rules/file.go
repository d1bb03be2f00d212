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
	"time"
)

// File is a value object referring to a path produced or consumed by a Job.
// Identity is by cleaned path. The flags are assigned by the rule whose
// pattern the file was expanded from.
type File struct {
	path  string
	flags PatternFlags
}

// NewFile returns a File for the given path with the given flags
func NewFile(path string, flags PatternFlags) *File {
	return &File{path: filepath.Clean(path), flags: flags}
}

// Path returns the cleaned path of the File
func (f *File) Path() string {
	return f.path
}

// String returns the path
func (f *File) String() string {
	return f.path
}

// IsTemp indicates the file should be removed once no consumer needs it
func (f *File) IsTemp() bool {
	return f.flags.Temp
}

// IsProtected indicates the file should be write-protected after production
func (f *File) IsProtected() bool {
	return f.flags.Protected
}

// IsDynamic indicates the file stems from a dynamic pattern
func (f *File) IsDynamic() bool {
	return f.flags.Dynamic
}

// Exists indicates whether the File is currently present on disk
func (f *File) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// ModTime returns the last modification time, or the zero time if the
// file does not exist
func (f *File) ModTime() time.Time {
	info, err := os.Stat(f.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// IsNewer returns true if the file exists and was modified after t
func (f *File) IsNewer(t time.Time) bool {
	mod := f.ModTime()
	return !mod.IsZero() && mod.After(t)
}

// Protect makes the file read-only
func (f *File) Protect() error {
	info, err := os.Stat(f.path)
	if err != nil {
		return err
	}
	return os.Chmod(f.path, info.Mode().Perm()&^0222)
}

// Remove deletes the file from disk
func (f *File) Remove() error {
	return os.Remove(f.path)
}

// FileSet is an insertion-ordered set of Files keyed by path
type FileSet struct {
	order  []*File
	byPath map[string]*File
}

// NewFileSet returns an empty FileSet
func NewFileSet(files ...*File) *FileSet {
	s := &FileSet{byPath: map[string]*File{}}
	for _, f := range files {
		s.Add(f)
	}
	return s
}

// Add inserts a File unless a file with the same path is already present
func (s *FileSet) Add(f *File) {
	if _, ok := s.byPath[f.Path()]; ok {
		return
	}
	s.byPath[f.Path()] = f
	s.order = append(s.order, f)
}

// AddAll inserts all files from another set
func (s *FileSet) AddAll(other *FileSet) {
	if other == nil {
		return
	}
	for _, f := range other.order {
		s.Add(f)
	}
}

// Remove deletes a file from the set by path
func (s *FileSet) Remove(path string) {
	if _, ok := s.byPath[path]; !ok {
		return
	}
	delete(s.byPath, path)
	for i, f := range s.order {
		if f.Path() == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Contains reports whether a file with the given path is in the set
func (s *FileSet) Contains(path string) bool {
	_, ok := s.byPath[path]
	return ok
}

// Get returns the file with the given path, if present
func (s *FileSet) Get(path string) (*File, bool) {
	f, ok := s.byPath[path]
	return f, ok
}

// Files returns the files in insertion order
func (s *FileSet) Files() []*File {
	return s.order
}

// Paths returns the file paths in insertion order
func (s *FileSet) Paths() []string {
	paths := make([]string, len(s.order))
	for i, f := range s.order {
		paths[i] = f.Path()
	}
	return paths
}

// Len returns the number of files in the set
func (s *FileSet) Len() int {
	return len(s.order)
}
