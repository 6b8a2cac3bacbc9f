/*
   Basilisk - Binary Analysis Artifact Store
   Copyright (C) 2026 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// The strings scale extracts printable string runs from a subject and
// sifts them for indicators worth a second look.
package strings

import (
	"context"
	"fmt"
	"io/ioutil"
	"regexp"
	"sort"
	strlib "strings"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/scales"
	"www.velocidex.com/golang/basilisk/scales/schema"
	"www.velocidex.com/golang/basilisk/subjects"
)

// Indicator patterns applied to extracted strings, not raw bytes, so
// a match is always printable.
var interesting_patterns = map[string]*regexp.Regexp{
	"url":          regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s"'<>]+`),
	"ipv4":         regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	"email":        regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	"windows_path": regexp.MustCompile(`(?i)\b[a-z]:\\[^\s"'<>|]+`),
	"registry_key": regexp.MustCompile(`(?i)\bHK(?:EY_[A-Z_]+|LM|CU|CR|U|CC)\\[^\s"'<>]+`),
}

var Scale = &scales.Definition{
	Name:        "strings",
	Description: "Printable string extraction and indicator sifting",
	Version:     "1.0",
	Author:      "Velocidex",
	Commands:    buildCommands,
}

func buildCommands(config_obj *config.Config) (*scales.Commands, error) {
	return scales.NewCommands(nil,
		&scales.CommandSpec{
			Name: "all_strings",
			Info: "Every printable string run in the subject",
			Args: schema.NewSpec(
				&schema.Field{
					Name:    "min_length",
					Kind:    schema.INT,
					Default: int64(4),
					Info:    "Shortest run to report",
				},
				&schema.Field{
					Name:    "limit",
					Kind:    schema.INT,
					Default: int64(10000),
					Info:    "Maximum number of strings to report",
				}),
			Handler:   allStrings,
			Plaintext: rowsPlaintext,
		},
		&scales.CommandSpec{
			Name:      "interesting",
			Info:      "Strings matching indicator patterns (urls, ips, paths)",
			Handler:   interestingStrings,
			Markdown:  interestingMarkdown,
			Plaintext: interestingPlaintext,
		},
	), nil
}

func allStrings(ctx context.Context,
	args map[string]interface{},
	handle *subjects.Handle,
	opts *scales.InvocationOptions) (interface{}, error) {

	min_length := args["min_length"].(int64)
	limit := args["limit"].(int64)

	extracted, err := extract(handle.LocalPath(), int(min_length))
	if err != nil {
		return nil, err
	}

	truncated := false
	if limit > 0 && int64(len(extracted)) > limit {
		extracted = extracted[:limit]
		truncated = true
	}

	rows := make([]interface{}, 0, len(extracted))
	for _, s := range extracted {
		rows = append(rows, s)
	}

	return ordereddict.NewDict().
		Set("rows", rows).
		Set("truncated", truncated), nil
}

func interestingStrings(ctx context.Context,
	args map[string]interface{},
	handle *subjects.Handle,
	opts *scales.InvocationOptions) (interface{}, error) {

	extracted, err := extract(handle.LocalPath(), 4)
	if err != nil {
		return nil, err
	}

	matches := make(map[string][]string)
	for _, s := range extracted {
		for kind, pattern := range interesting_patterns {
			for _, match := range pattern.FindAllString(s, -1) {
				if !contains(matches[kind], match) {
					matches[kind] = append(matches[kind], match)
				}
			}
		}
	}

	kinds := make([]string, 0, len(interesting_patterns))
	for kind := range interesting_patterns {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	result := ordereddict.NewDict()
	for _, kind := range kinds {
		found := matches[kind]
		if found == nil {
			found = []string{}
		}
		sort.Strings(found)
		result.Set(kind, found)
	}

	return result, nil
}

// extract scans for runs of printable ASCII, both as plain bytes and
// as UTF-16LE which Windows binaries are full of.
func extract(file_path string, min_length int) ([]string, error) {
	data, err := ioutil.ReadFile(file_path)
	if err != nil {
		return nil, errors.NewCommandError(
			"unable to read subject: %v", err)
	}

	var result []string
	var run []byte

	flush := func() {
		if len(run) >= min_length {
			result = append(result, string(run))
		}
		run = run[:0]
	}

	for _, b := range data {
		if b >= 0x20 && b <= 0x7e {
			run = append(run, b)
		} else {
			flush()
		}
	}
	flush()

	// UTF-16LE: printable ASCII low bytes interleaved with zeros.
	for i := 0; i+1 < len(data); i += 2 {
		b := data[i]
		if data[i+1] == 0 && b >= 0x20 && b <= 0x7e {
			run = append(run, b)
		} else {
			flush()
		}
	}
	flush()

	return result, nil
}

func contains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

func rowsPlaintext(output *ordereddict.Dict) (string, error) {
	rows_any, _ := output.Get("rows")
	rows, ok := rows_any.([]interface{})
	if !ok {
		return "", errors.New("malformed strings output")
	}

	var builder strlib.Builder
	for _, row := range rows {
		fmt.Fprintf(&builder, "%v\n", row)
	}

	return strlib.TrimRight(builder.String(), "\n"), nil
}

func interestingMarkdown(output *ordereddict.Dict) (string, error) {
	var builder strlib.Builder

	builder.WriteString("| kind | value |\n|---|---|\n")
	for _, kind := range output.Keys() {
		for _, value := range valueList(output, kind) {
			fmt.Fprintf(&builder, "| %v | %v |\n", kind, value)
		}
	}

	return builder.String(), nil
}

func interestingPlaintext(output *ordereddict.Dict) (string, error) {
	var builder strlib.Builder

	for _, kind := range output.Keys() {
		for _, value := range valueList(output, kind) {
			fmt.Fprintf(&builder, "%v: %v\n", kind, value)
		}
	}

	return strlib.TrimRight(builder.String(), "\n"), nil
}

// valueList tolerates both the native []string form and the
// []interface{} form the values take after a json round trip.
func valueList(output *ordereddict.Dict, key string) []string {
	value, _ := output.Get(key)

	switch t := value.(type) {
	case []string:
		return t

	case []interface{}:
		result := make([]string, 0, len(t))
		for _, item := range t {
			result = append(result, fmt.Sprintf("%v", item))
		}
		return result
	}

	return nil
}

func init() {
	scales.RegisterBuiltin(Scale)
}
