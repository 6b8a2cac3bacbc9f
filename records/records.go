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

// Command records track every analysis execution against a subject.
// A record is addressed by the composite key (sha256 digest, scale,
// command, normalized args) and owns at most one output blob.
package records

import (
	"encoding/json"
	"time"

	"github.com/Velocidex/ordereddict"
)

type Status string

const (
	PENDING Status = "pending"
	RUNNING Status = "running"
	SUCCESS Status = "success"
	FAILED  Status = "failed"
	ERROR   Status = "error"
)

func (self Status) Terminal() bool {
	switch self {
	case SUCCESS, FAILED, ERROR:
		return true
	}
	return false
}

type Key struct {
	Sha256Digest string
	Scale        string
	Command      string
	ArgsKey      string
}

type Record struct {
	Sha256Digest string                 `json:"sha256_digest"`
	Scale        string                 `json:"scale"`
	Command      string                 `json:"command"`
	Args         map[string]interface{} `json:"args"`
	ArgsKey      string                 `json:"args_key"`
	Asynchronous bool                   `json:"asynchronous"`

	// Soft execution limit in seconds.
	Timeout int `json:"timeout"`

	Format string `json:"format"`
	Status Status `json:"status"`

	// Id of the output blob, empty until a terminal state is
	// reached.
	OutputID string `json:"output_id"`

	Timestamp int64 `json:"timestamp"`
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`
}

func (self *Record) Key() Key {
	return Key{
		Sha256Digest: self.Sha256Digest,
		Scale:        self.Scale,
		Command:      self.Command,
		ArgsKey:      self.ArgsKey,
	}
}

// NormalizeArgs derives the canonical args component of the
// composite key. Encoding a map sorts the keys at every level, so
// semantically identical argument sets always produce the same key.
func NormalizeArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return "{}"
	}

	serialized, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}

	return string(serialized)
}

func NewKey(sha256_digest, scale, command string,
	args map[string]interface{}) Key {
	return Key{
		Sha256Digest: sha256_digest,
		Scale:        scale,
		Command:      command,
		ArgsKey:      NormalizeArgs(args),
	}
}

func NewRecord(sha256_digest, scale, command string,
	args map[string]interface{}) *Record {
	return &Record{
		Sha256Digest: sha256_digest,
		Scale:        scale,
		Command:      command,
		Args:         args,
		ArgsKey:      NormalizeArgs(args),
		Status:       PENDING,
		Timestamp:    time.Now().Unix(),
	}
}

func (self *Record) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("sha256_digest", self.Sha256Digest).
		Set("scale", self.Scale).
		Set("command", self.Command).
		Set("args", self.Args).
		Set("args_key", self.ArgsKey).
		Set("asynchronous", self.Asynchronous).
		Set("timeout", self.Timeout).
		Set("format", self.Format).
		Set("status", string(self.Status)).
		Set("output_id", self.OutputID).
		Set("timestamp", self.Timestamp).
		Set("start_time", self.StartTime).
		Set("end_time", self.EndTime)
}

func RecordFromDict(doc *ordereddict.Dict) *Record {
	result := &Record{}
	result.Sha256Digest, _ = doc.GetString("sha256_digest")
	result.Scale, _ = doc.GetString("scale")
	result.Command, _ = doc.GetString("command")
	result.ArgsKey, _ = doc.GetString("args_key")
	result.Asynchronous, _ = doc.GetBool("asynchronous")
	result.Format, _ = doc.GetString("format")
	result.OutputID, _ = doc.GetString("output_id")

	status, _ := doc.GetString("status")
	result.Status = Status(status)

	timeout, _ := doc.GetInt64("timeout")
	result.Timeout = int(timeout)

	result.Timestamp, _ = doc.GetInt64("timestamp")
	result.StartTime, _ = doc.GetInt64("start_time")
	result.EndTime, _ = doc.GetInt64("end_time")

	args, pres := doc.Get("args")
	if pres {
		switch t := args.(type) {
		case map[string]interface{}:
			result.Args = t

		case *ordereddict.Dict:
			// Nested dicts come back as ordereddict after a storage
			// round trip.
			result.Args = make(map[string]interface{})
			for _, k := range t.Keys() {
				v, _ := t.Get(k)
				result.Args[k] = v
			}
		}
	}

	return result
}
