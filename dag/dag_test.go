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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loomworks/loom/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "loom-")
	require.Nil(t, err)
	return dir
}

func writeFile(t *testing.T, path string) {
	require.Nil(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.Nil(t, ioutil.WriteFile(path, []byte(path), 0644))
}

func plainPatterns(raws []string) []*rules.Pattern {
	var result []*rules.Pattern
	for _, raw := range raws {
		result = append(result, rules.MustPattern(raw, rules.PatternFlags{}))
	}
	return result
}

func plainRule(name string, order int, inputs, outputs []string) *rules.Rule {
	return rules.NewRule(rules.RuleOpts{
		Name:   name,
		Order:  order,
		Input:  plainPatterns(inputs),
		Output: plainPatterns(outputs),
	})
}

// assertInvariants checks the structural invariants that must hold after
// every mutating call: edge symmetry, acyclicity, and the containment of
// the ready set in needrun minus finished.
func assertInvariants(t *testing.T, d *DAG) {

	// Symmetry between the two edge maps
	for job, producers := range d.deps {
		for _, producer := range producers.order {
			consumers, ok := d.rdeps[producer]
			require.True(t, ok, "missing rdeps entry for producer")
			back, ok := consumers.files[job]
			require.True(t, ok, "missing back edge")
			for _, f := range producers.files[producer].Files() {
				assert.True(t, back.Contains(f.Path()),
					"file %s missing from back edge", f.Path())
			}
		}
	}
	for job, consumers := range d.rdeps {
		for _, consumer := range consumers.order {
			producers, ok := d.deps[consumer]
			require.True(t, ok, "missing deps entry for consumer")
			_, ok = producers.files[job]
			require.True(t, ok, "missing forward edge")
		}
	}

	// Acyclicity via iterative DFS with an on-path set
	onPath := map[*rules.Job]bool{}
	done := map[*rules.Job]bool{}
	var visit func(job *rules.Job)
	visit = func(job *rules.Job) {
		if done[job] {
			return
		}
		require.False(t, onPath[job], "cycle detected at %s", job)
		onPath[job] = true
		if producers, ok := d.deps[job]; ok {
			for _, p := range producers.order {
				visit(p)
			}
		}
		onPath[job] = false
		done[job] = true
	}
	for _, job := range d.TargetJobs() {
		visit(job)
	}

	// Ready is a subset of needrun minus finished
	for _, job := range d.ReadyJobs() {
		assert.True(t, d.Needrun(job))
		assert.False(t, d.Finished(job))
	}
}

func TestLinearChain(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	writeFile(t, a)

	a2b := plainRule("a2b", 0, []string{a}, []string{b})
	b2c := plainRule("b2c", 1, []string{b}, []string{c})

	d := New(Options{Rules: []*rules.Rule{a2b, b2c}, TargetFiles: []string{c}})
	require.Nil(t, d.Init())
	assertInvariants(t, d)

	assert.Equal(t, 2, d.Len())
	assert.Len(t, d.Jobs(), 2)

	ready := d.ReadyJobs()
	require.Len(t, ready, 1)
	assert.Equal(t, "a2b", ready[0].Rule().Name())

	require.Nil(t, d.Finish(ready[0], true))
	assertInvariants(t, d)

	ready = d.ReadyJobs()
	require.Len(t, ready, 1)
	assert.Equal(t, "b2c", ready[0].Rule().Name())

	require.Nil(t, d.Finish(ready[0], true))
	assertInvariants(t, d)

	for _, job := range d.Jobs() {
		if d.Needrun(job) {
			assert.True(t, d.Finished(job))
		}
	}
	assert.Empty(t, d.ReadyJobs())
}

func TestAmbiguousRules(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	x := filepath.Join(dir, "x.txt")

	// Same priority, specificity and definition order: a true tie
	r1 := plainRule("one", 0, nil, []string{x})
	r2 := plainRule("two", 0, nil, []string{x})

	d := New(Options{Rules: []*rules.Rule{r1, r2}, TargetFiles: []string{x}})
	err := d.Init()
	require.NotNil(t, err)
	ambiguous, ok := err.(*AmbiguousRuleError)
	require.True(t, ok, "expected AmbiguousRuleError, got %v", err)
	assert.Equal(t, x, ambiguous.File)

	// With ignore-ambiguity the first of the tied candidates wins silently
	d = New(Options{
		Rules:           []*rules.Rule{r1, r2},
		TargetFiles:     []string{x},
		IgnoreAmbiguity: true,
	})
	require.Nil(t, d.Init())
	targets := d.TargetJobs()
	require.Len(t, targets, 1)
	assert.Equal(t, "one", targets[0].Rule().Name())
}

func TestAmbiguityResolvedByPriority(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	x := filepath.Join(dir, "x.txt")

	preferred := rules.NewRule(rules.RuleOpts{
		Name:     "preferred",
		Order:    0,
		Priority: 10,
		Output:   plainPatterns([]string{x}),
	})
	fallback := plainRule("fallback", 1, nil, []string{x})

	d := New(Options{Rules: []*rules.Rule{fallback, preferred}, TargetFiles: []string{x}})
	require.Nil(t, d.Init())
	targets := d.TargetJobs()
	require.Len(t, targets, 1)
	assert.Equal(t, "preferred", targets[0].Rule().Name())
}

func TestCyclicRule(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	pattern := filepath.Join(dir, "loop", "{x}.dat")

	loop := rules.NewRule(rules.RuleOpts{
		Name:   "loop",
		Input:  []*rules.Pattern{rules.MustPattern(pattern, rules.PatternFlags{})},
		Output: []*rules.Pattern{rules.MustPattern(pattern, rules.PatternFlags{})},
	})
	d := New(Options{
		Rules:       []*rules.Rule{loop},
		TargetFiles: []string{filepath.Join(dir, "loop", "1.dat")},
	})
	err := d.Init()
	require.NotNil(t, err)
	cyclic, ok := err.(*CyclicGraphError)
	require.True(t, ok, "expected CyclicGraphError, got %v", err)
	assert.Equal(t, "loop", cyclic.Rule.Name())
	assert.Equal(t, filepath.Join(dir, "loop", "1.dat"), cyclic.File)
}

func TestRecursionLimit(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)

	// Each expansion needs an input whose wildcard value grows by one
	// character, so resolution never terminates on its own
	grow := rules.NewRule(rules.RuleOpts{
		Name:   "grow",
		Input:  []*rules.Pattern{rules.MustPattern(filepath.Join(dir, "{x}a.txt"), rules.PatternFlags{})},
		Output: []*rules.Pattern{rules.MustPattern(filepath.Join(dir, "{x}.txt"), rules.PatternFlags{})},
	})
	d := New(Options{
		Rules:       []*rules.Rule{grow},
		TargetFiles: []string{filepath.Join(dir, "1.txt")},
	})
	err := d.Init()
	require.NotNil(t, err)
	_, ok := err.(*RecursionError)
	require.True(t, ok, "expected RecursionError, got %v", err)
}

func TestMissingRule(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)

	d := New(Options{
		Rules:       nil,
		TargetFiles: []string{filepath.Join(dir, "nope.txt")},
	})
	err := d.Init()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "no rule to produce")
}

func TestMissingInput(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")

	b2c := plainRule("b2c", 0, []string{b}, []string{c})
	d := New(Options{Rules: []*rules.Rule{b2c}, TargetFiles: []string{c}})
	err := d.Init()
	require.NotNil(t, err)
	missing, ok := err.(*MissingInputError)
	require.True(t, ok, "expected MissingInputError, got %v", err)
	assert.Equal(t, "b2c", missing.Rule.Name())
	assert.Equal(t, []string{b}, missing.Files)
}

func TestTempCleanup(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	dOut := filepath.Join(dir, "d.txt")
	e := filepath.Join(dir, "e.txt")
	writeFile(t, a)

	rb := rules.NewRule(rules.RuleOpts{
		Name:   "rb",
		Order:  0,
		Input:  plainPatterns([]string{a}),
		Output: []*rules.Pattern{rules.MustPattern(b, rules.PatternFlags{Temp: true})},
	})
	rc := plainRule("rc", 1, []string{b}, []string{c})
	rd := plainRule("rd", 2, []string{c}, []string{dOut})
	re := plainRule("re", 3, []string{c}, []string{e})

	d := New(Options{
		Rules:       []*rules.Rule{rb, rc, rd, re},
		TargetFiles: []string{dOut, e},
	})
	require.Nil(t, d.Init())
	assert.Equal(t, 4, d.Len())

	finishNext := func(name string) *rules.Job {
		for _, job := range d.ReadyJobs() {
			if job.Rule().Name() == name {
				for _, f := range job.Output() {
					writeFile(t, f.Path())
				}
				require.Nil(t, d.Finish(job, true))
				return job
			}
		}
		t.Fatalf("job for rule %s not ready", name)
		return nil
	}

	jobB := finishNext("rb")
	d.HandleTemp(jobB)
	assert.True(t, rules.NewFile(b, rules.PatternFlags{}).Exists())

	jobC := finishNext("rc")
	d.HandleTemp(jobC)
	// No unfinished consumer of rb remains besides rc itself
	assert.False(t, rules.NewFile(b, rules.PatternFlags{}).Exists())

	finishNext("rd")
	finishNext("re")
	assertInvariants(t, d)
}

func TestTempKeptWhileConsumerUnfinished(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	f := filepath.Join(dir, "f.txt")
	writeFile(t, a)

	rb := rules.NewRule(rules.RuleOpts{
		Name:   "rb",
		Order:  0,
		Input:  plainPatterns([]string{a}),
		Output: []*rules.Pattern{rules.MustPattern(b, rules.PatternFlags{Temp: true})},
	})
	rc := plainRule("rc", 1, []string{b}, []string{c})
	rf := plainRule("rf", 2, []string{b}, []string{f})

	d := New(Options{
		Rules:       []*rules.Rule{rb, rc, rf},
		TargetFiles: []string{c, f},
	})
	require.Nil(t, d.Init())

	var jobs []*rules.Job
	for len(d.ReadyJobs()) > 0 {
		job := d.ReadyJobs()[0]
		for _, out := range job.Output() {
			writeFile(t, out.Path())
		}
		require.Nil(t, d.Finish(job, true))
		jobs = append(jobs, job)
		if job.Rule().Name() == "rc" {
			d.HandleTemp(job)
			// rf has not finished and still needs b
			assert.True(t, rules.NewFile(b, rules.PatternFlags{}).Exists())
		}
		if job.Rule().Name() == "rf" {
			d.HandleTemp(job)
			assert.False(t, rules.NewFile(b, rules.PatternFlags{}).Exists())
		}
	}
	require.Len(t, jobs, 3)
}

func TestUpToDateAndForce(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	writeFile(t, a)
	writeFile(t, b)
	writeFile(t, c)

	// Make each downstream file strictly newer than its input
	base := time.Now().Add(-time.Hour)
	require.Nil(t, os.Chtimes(a, base, base))
	require.Nil(t, os.Chtimes(b, base.Add(time.Minute), base.Add(time.Minute)))
	require.Nil(t, os.Chtimes(c, base.Add(2*time.Minute), base.Add(2*time.Minute)))

	a2b := plainRule("a2b", 0, []string{a}, []string{b})
	b2c := plainRule("b2c", 1, []string{b}, []string{c})
	ruleset := []*rules.Rule{a2b, b2c}

	d := New(Options{Rules: ruleset, TargetFiles: []string{c}})
	require.Nil(t, d.Init())
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.ReadyJobs())

	// Forcing a2b pulls its downstream along
	d = New(Options{
		Rules:       ruleset,
		TargetFiles: []string{c},
		ForceRules:  []*rules.Rule{a2b},
	})
	require.Nil(t, d.Init())
	assert.Equal(t, 2, d.Len())
	for _, job := range d.NeedrunJobs() {
		switch job.Rule().Name() {
		case "a2b":
			assert.True(t, d.Reason(job).Forced)
		case "b2c":
			assert.True(t, d.Reason(job).UpdatedInputRun.Contains(b))
		}
	}
	assertInvariants(t, d)
}

func TestForceNeverShrinksNeedrun(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a)

	a2b := plainRule("a2b", 0, []string{a}, []string{b})

	d := New(Options{Rules: []*rules.Rule{a2b}, TargetFiles: []string{b}})
	require.Nil(t, d.Init())
	before := d.Len()

	d.forceRules[a2b] = true
	d.Postprocess()
	assert.True(t, d.Len() >= before)
}

func TestUpdatedInput(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a)
	writeFile(t, b)

	// The input is newer than the output, so the job is stale
	base := time.Now().Add(-time.Hour)
	require.Nil(t, os.Chtimes(b, base, base))
	require.Nil(t, os.Chtimes(a, base.Add(time.Minute), base.Add(time.Minute)))

	a2b := plainRule("a2b", 0, []string{a}, []string{b})
	d := New(Options{Rules: []*rules.Rule{a2b}, TargetFiles: []string{b}})
	require.Nil(t, d.Init())

	require.Equal(t, 1, d.Len())
	job := d.NeedrunJobs()[0]
	assert.True(t, d.Reason(job).UpdatedInput.Contains(a))
}

func TestPostprocessIdempotent(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	writeFile(t, a)

	a2b := plainRule("a2b", 0, []string{a}, []string{b})
	b2c := plainRule("b2c", 1, []string{b}, []string{c})
	d := New(Options{Rules: []*rules.Rule{a2b, b2c}, TargetFiles: []string{c}})
	require.Nil(t, d.Init())

	needrunBefore := d.Len()
	readyBefore := append([]*rules.Job{}, d.ReadyJobs()...)

	d.Postprocess()
	assert.Equal(t, needrunBefore, d.Len())
	assert.Equal(t, readyBefore, d.ReadyJobs())
}

func TestDeterministicResolution(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	merged := filepath.Join(dir, "m.txt")
	writeFile(t, a)

	build := func() *DAG {
		r1 := plainRule("r1", 0, []string{a}, []string{b})
		r2 := plainRule("r2", 1, []string{a}, []string{c})
		r3 := plainRule("r3", 2, []string{b, c}, []string{merged})
		d := New(Options{
			Rules:       []*rules.Rule{r1, r2, r3},
			TargetFiles: []string{merged},
		})
		require.Nil(t, d.Init())
		return d
	}

	d1 := build()
	d2 := build()

	names := func(jobs []*rules.Job) []string {
		var result []string
		for _, job := range jobs {
			result = append(result, job.String())
		}
		return result
	}
	assert.Equal(t, names(d1.Jobs()), names(d2.Jobs()))
	assert.Equal(t, names(d1.NeedrunJobs()), names(d2.NeedrunJobs()))
	assert.Equal(t, names(d1.ReadyJobs()), names(d2.ReadyJobs()))
}

func TestCheckOutputAndProtected(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a)

	a2b := rules.NewRule(rules.RuleOpts{
		Name:   "a2b",
		Input:  plainPatterns([]string{a}),
		Output: []*rules.Pattern{rules.MustPattern(b, rules.PatternFlags{Protected: true})},
	})
	d := New(Options{Rules: []*rules.Rule{a2b}, TargetFiles: []string{b}})
	require.Nil(t, d.Init())

	job := d.ReadyJobs()[0]
	err := d.CheckOutput(job)
	require.NotNil(t, err)
	_, ok := err.(*MissingOutputError)
	assert.True(t, ok)

	writeFile(t, b)
	require.Nil(t, d.CheckOutput(job))

	d.HandleProtected(job)
	info, err2 := os.Stat(b)
	require.Nil(t, err2)
	assert.Equal(t, os.FileMode(0), info.Mode().Perm()&0222)
	os.Chmod(b, 0644)
}

func TestExternalTargetWithoutProducerFails(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	writeFile(t, a)

	// A rule exists, but not for the requested file
	other := plainRule("other", 0, nil, []string{filepath.Join(dir, "b.txt")})
	d := New(Options{Rules: []*rules.Rule{other}, TargetFiles: []string{a}})
	err := d.Init()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "no rule to produce")
}

func TestTargetRule(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	writeFile(t, a)

	// A rule with inputs but no outputs, named directly as the target
	check := plainRule("check", 0, []string{a}, nil)
	d := New(Options{Rules: []*rules.Rule{check}, TargetRules: []*rules.Rule{check}})
	require.Nil(t, d.Init())

	require.Len(t, d.TargetJobs(), 1)
	// All inputs exist, so there is nothing to do
	assert.Equal(t, 0, d.Len())

	// A rule with neither inputs nor outputs always runs
	noio := plainRule("noio", 0, nil, nil)
	d = New(Options{Rules: []*rules.Rule{noio}, TargetRules: []*rules.Rule{noio}})
	require.Nil(t, d.Init())
	require.Equal(t, 1, d.Len())
	job := d.NeedrunJobs()[0]
	assert.True(t, d.Reason(job).NoIO)
}

func TestMissingTemp(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	writeFile(t, a)

	a2b := plainRule("a2b", 0, []string{a}, []string{b})
	b2c := plainRule("b2c", 1, []string{b}, []string{c})
	d := New(Options{Rules: []*rules.Rule{a2b, b2c}, TargetFiles: []string{c}})
	require.Nil(t, d.Init())

	var jobB *rules.Job
	for _, job := range d.Jobs() {
		if job.Rule().Name() == "a2b" {
			jobB = job
		}
	}
	require.NotNil(t, jobB)

	// b does not exist and its consumer still needs to run
	assert.True(t, d.MissingTemp(jobB))

	writeFile(t, b)
	assert.False(t, d.MissingTemp(jobB))
}

func TestTraversalOrder(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	writeFile(t, a)

	a2b := plainRule("a2b", 0, []string{a}, []string{b})
	b2c := plainRule("b2c", 1, []string{b}, []string{c})
	d := New(Options{Rules: []*rules.Rule{a2b, b2c}, TargetFiles: []string{c}})
	require.Nil(t, d.Init())

	names := func(jobs []*rules.Job) []string {
		var result []string
		for _, job := range jobs {
			result = append(result, job.Rule().Name())
		}
		return result
	}

	// BFS from the targets walks towards producers
	assert.Equal(t, []string{"b2c", "a2b"},
		names(d.bfs(d.depsOf, d.TargetJobs(), nil)))

	// Post-order DFS yields dependency order
	assert.Equal(t, []string{"a2b", "b2c"},
		names(d.dfs(d.depsOf, d.TargetJobs(), nil, true)))

	// Pre-order DFS yields the reverse
	assert.Equal(t, []string{"b2c", "a2b"},
		names(d.dfs(d.depsOf, d.TargetJobs(), nil, false)))
}

func TestNewWildcards(t *testing.T) {

	dir := testDir(t)
	defer os.RemoveAll(dir)
	writeFile(t, filepath.Join(dir, "reads", "a.fq"))

	align := rules.NewRule(rules.RuleOpts{
		Name:   "align",
		Order:  0,
		Input:  []*rules.Pattern{rules.MustPattern(filepath.Join(dir, "reads", "{sample}.fq"), rules.PatternFlags{})},
		Output: []*rules.Pattern{rules.MustPattern(filepath.Join(dir, "aligned", "{sample}.bam"), rules.PatternFlags{})},
	})
	sort := rules.NewRule(rules.RuleOpts{
		Name:   "sort",
		Order:  1,
		Input:  []*rules.Pattern{rules.MustPattern(filepath.Join(dir, "aligned", "{sample}.bam"), rules.PatternFlags{})},
		Output: []*rules.Pattern{rules.MustPattern(filepath.Join(dir, "sorted", "{sample}.bam"), rules.PatternFlags{})},
	})
	d := New(Options{
		Rules:       []*rules.Rule{align, sort},
		TargetFiles: []string{filepath.Join(dir, "sorted", "a.bam")},
	})
	require.Nil(t, d.Init())

	for _, job := range d.Jobs() {
		fresh := d.NewWildcards(job)
		switch job.Rule().Name() {
		case "align":
			// The bottom-most job introduces the binding
			require.Len(t, fresh, 1)
			assert.Equal(t, "sample", fresh[0].Name)
			assert.Equal(t, "a", fresh[0].Value)
		case "sort":
			// Inherited from its producer
			assert.Empty(t, fresh)
		}
	}
}
