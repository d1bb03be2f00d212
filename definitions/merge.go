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
package definitions

// ApplyDefaults returns a copy of the Rule with unset fields filled in
// from the workflow defaults. The original definitions remain unmodified.
func (r Rule) ApplyDefaults(d Defaults) Rule {
	merged := Rule{
		Name:        r.Name,
		Description: r.Description,
		Input:       copyStrings(r.Input),
		Output:      copyStrings(r.Output),
		Temp:        copyStrings(r.Temp),
		Protected:   copyStrings(r.Protected),
		Dynamic:     copyStrings(r.Dynamic),
		Priority:    mergeInt(d.Priority, r.Priority),
		Command:     mergeStr(d.Command, r.Command),
	}
	return merged
}

func mergeStr(a, b string) string {
	if b != "" {
		return b
	}
	return a
}

func mergeInt(a, b int) int {
	if b != 0 {
		return b
	}
	return a
}

func copyStrings(input []string) []string {
	if input == nil {
		return nil
	}
	result := make([]string, len(input))
	copy(result, input)
	return result
}
