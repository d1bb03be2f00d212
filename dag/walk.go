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
package dag

import (
	"github.com/loomworks/loom/rules"
)

// direction selects one of the two edge maps for a traversal
type direction func(job *rules.Job) *edges

func (d *DAG) depsOf(job *rules.Job) *edges {
	return d.deps[job]
}

func (d *DAG) rdepsOf(job *rules.Job) *edges {
	return d.rdeps[job]
}

// bfs walks the chosen edge map breadth-first from the given roots. Nodes
// matching stop are skipped along with their successors. Each node is
// visited at most once; order follows edge insertion order and is
// therefore deterministic.
func (d *DAG) bfs(dir direction, roots []*rules.Job, stop func(*rules.Job) bool) []*rules.Job {
	var result []*rules.Job
	queue := append([]*rules.Job{}, roots...)
	visited := map[*rules.Job]bool{}
	for _, job := range queue {
		visited[job] = true
	}
	for len(queue) > 0 {
		job := queue[0]
		queue = queue[1:]
		if stop != nil && stop(job) {
			continue
		}
		result = append(result, job)
		if e := dir(job); e != nil {
			for _, next := range e.order {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
	}
	return result
}

// dfs walks the chosen edge map depth-first from the given roots. With
// post set, nodes are emitted in post-order, which yields a dependency
// order when walking the producer direction.
func (d *DAG) dfs(dir direction, roots []*rules.Job, stop func(*rules.Job) bool, post bool) []*rules.Job {
	var result []*rules.Job
	visited := map[*rules.Job]bool{}
	var walk func(job *rules.Job)
	walk = func(job *rules.Job) {
		if stop != nil && stop(job) {
			return
		}
		if !post {
			result = append(result, job)
		}
		if e := dir(job); e != nil {
			for _, next := range e.order {
				if !visited[next] {
					visited[next] = true
					walk(next)
				}
			}
		}
		if post {
			result = append(result, job)
		}
	}
	for _, job := range roots {
		walk(job)
	}
	return result
}
