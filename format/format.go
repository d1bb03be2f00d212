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
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/fatih/structs"
)

// TableOpts are options used when rendering a table
type TableOpts struct {
	Rows       []interface{}
	Colors     []*color.Color
	Columns    []string
	Separator  string
	ShowHeader bool
}

// Table builds a text table from the given data items and chosen columns.
// It returns a list of rows that can be printed.
func Table(opts TableOpts) ([]string, error) {

	if len(opts.Rows) == 0 {
		return nil, errors.New("no rows to display")
	}
	if len(opts.Columns) == 0 {
		return nil, errors.New("no columns to display")
	}
	if opts.Separator == "" {
		opts.Separator = "  "
	}

	columnLabels := make([]string, len(opts.Columns))
	for i, name := range opts.Columns {
		columnLabels[i] = strings.ToUpper(toSnakeCase(name))
	}

	rows, err := extractSliceAttrs(getRowMaps(opts.Rows), opts.Columns)
	if err != nil {
		return nil, err
	}

	widths := columnWidths(rows, columnLabels, opts.ShowHeader)
	formats := columnFormats(widths)

	var result []string
	if opts.ShowHeader {
		cells := make([]string, len(columnLabels))
		for i, label := range columnLabels {
			cells[i] = fmt.Sprintf(formats[i], label)
		}
		result = append(result, strings.Join(cells, opts.Separator))
	}
	for rowIndex, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cell := fmt.Sprintf(formats[i], value)
			if opts.Colors != nil && rowIndex < len(opts.Colors) && opts.Colors[rowIndex] != nil {
				cell = opts.Colors[rowIndex].Sprint(cell)
			}
			cells[i] = cell
		}
		result = append(result, strings.Join(cells, opts.Separator))
	}
	return result, nil
}

func getRowMaps(rows []interface{}) []map[string]interface{} {
	result := []map[string]interface{}{}
	for _, row := range rows {
		result = append(result, structs.Map(row))
	}
	return result
}

func extractAttrs(item map[string]interface{}, attrs []string) ([]string, error) {
	result := make([]string, len(attrs))
	for i, attr := range attrs {
		value, ok := item[attr]
		if !ok {
			return nil, fmt.Errorf("item has no attribute: %s", attr)
		}
		result[i] = fmt.Sprintf("%v", value)
	}
	return result, nil
}

func extractSliceAttrs(items []map[string]interface{}, attrs []string) ([][]string, error) {
	result := make([][]string, len(items))
	for i, item := range items {
		values, err := extractAttrs(item, attrs)
		if err != nil {
			return nil, err
		}
		result[i] = values
	}
	return result, nil
}

func columnWidths(rows [][]string, columnLabels []string, includeCols bool) []int {
	widths := make([]int, len(columnLabels))
	if includeCols {
		for i, label := range columnLabels {
			widths[i] = len(label)
		}
	}
	for _, row := range rows {
		for colIndex, colValue := range row {
			if len(colValue) > widths[colIndex] {
				widths[colIndex] = len(colValue)
			}
		}
	}
	return widths
}

func columnFormats(widths []int) []string {
	formats := make([]string, len(widths))
	for i, width := range widths {
		formats[i] = fmt.Sprintf("%%-%ds", width)
	}
	return formats
}

var snakeCaseFirst = regexp.MustCompile("(.)([A-Z][a-z]+)")
var snakeCaseAll = regexp.MustCompile("([a-z0-9])([A-Z])")

func toSnakeCase(str string) string {
	snake := snakeCaseFirst.ReplaceAllString(str, "${1}_${2}")
	snake = snakeCaseAll.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}
