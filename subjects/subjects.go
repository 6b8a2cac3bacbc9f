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

// A subject is an ingested artifact - its bytes live in the file
// store under the sha256 digest, its metadata lives here.
package subjects

import (
	"time"

	"github.com/Velocidex/ordereddict"
)

type FileType string

const (
	FILE   FileType = "file"
	MEMORY FileType = "memory"

	// ANY matches either file type in lookups.
	ANY FileType = ""
)

type Subject struct {
	Sha256Digest string   `json:"sha256_digest"`
	FileType     FileType `json:"file_type"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`

	Magic string `json:"magic"`
	Mime  string `json:"mime"`
	Size  int64  `json:"size"`

	// How the subject arrived ("upload", "scale:<name>").
	SubmissionType string `json:"submission_type"`

	// Provenance adjacency, keyed by the related subject's digest.
	// Each entry lists the provenance tags naming the deriving
	// operations. Tags are only ever appended.
	Parents  map[string][]string `json:"parents"`
	Children map[string][]string `json:"children"`

	Timestamp  int64 `json:"timestamp"`
	UpdateTime int64 `json:"update_time"`
}

func NewSubject(sha256_digest string, file_type FileType, name string) *Subject {
	return &Subject{
		Sha256Digest:   sha256_digest,
		FileType:       file_type,
		Name:           name,
		SubmissionType: "upload",
		Parents:        make(map[string][]string),
		Children:       make(map[string][]string),
		Timestamp:      time.Now().Unix(),
	}
}

func (self *Subject) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("sha256_digest", self.Sha256Digest).
		Set("file_type", string(self.FileType)).
		Set("name", self.Name).
		Set("description", self.Description).
		Set("tags", self.Tags).
		Set("magic", self.Magic).
		Set("mime", self.Mime).
		Set("size", self.Size).
		Set("submission_type", self.SubmissionType).
		Set("parents", self.Parents).
		Set("children", self.Children).
		Set("timestamp", self.Timestamp).
		Set("update_time", self.UpdateTime)
}

func SubjectFromDict(doc *ordereddict.Dict) *Subject {
	result := &Subject{
		Parents:  make(map[string][]string),
		Children: make(map[string][]string),
	}

	result.Sha256Digest, _ = doc.GetString("sha256_digest")
	result.Name, _ = doc.GetString("name")
	result.Description, _ = doc.GetString("description")
	result.Tags, _ = doc.GetStrings("tags")
	result.Magic, _ = doc.GetString("magic")
	result.Mime, _ = doc.GetString("mime")
	result.SubmissionType, _ = doc.GetString("submission_type")

	file_type, _ := doc.GetString("file_type")
	result.FileType = FileType(file_type)

	result.Size, _ = doc.GetInt64("size")
	result.Timestamp, _ = doc.GetInt64("timestamp")
	result.UpdateTime, _ = doc.GetInt64("update_time")

	parents, pres := doc.Get("parents")
	if pres {
		result.Parents = toAdjacency(parents)
	}

	children, pres := doc.Get("children")
	if pres {
		result.Children = toAdjacency(children)
	}

	return result
}

// toAdjacency normalizes the adjacency map across the shapes a JSON
// storage round trip produces.
func toAdjacency(v interface{}) map[string][]string {
	result := make(map[string][]string)

	switch t := v.(type) {
	case map[string][]string:
		for digest, tags := range t {
			result[digest] = append([]string{}, tags...)
		}

	case map[string]interface{}:
		for digest, tags := range t {
			result[digest] = toStrings(tags)
		}

	case *ordereddict.Dict:
		for _, digest := range t.Keys() {
			tags, _ := t.Get(digest)
			result[digest] = toStrings(tags)
		}
	}

	return result
}

func toStrings(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return append([]string{}, t...)

	case []interface{}:
		result := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if ok {
				result = append(result, s)
			}
		}
		return result
	}

	return nil
}
