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

// A streaming multipart demultiplexer. Uploads can be far larger
// than memory, so file parts are spilled to numbered staging files
// as the chunks arrive while everything else is buffered into a
// reconstructed body. The reconstructed body - with each file's
// bytes replaced by its staging path - stays small and is handed to
// the stock multipart reader at the end.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
)

// How many trailing bytes are carried between chunks so a part
// delimiter straddling a chunk boundary is never missed.
const tailSize = 50

type parserState int

const (
	findPartStart parserState = iota
	readingPartHeader
	streamingFileBody
	bufferingOtherBody
	parseDone
)

// A staged file part.
type StagedFile struct {
	Field    string
	FileName string

	// Path of the spilled bytes inside the staging directory.
	Path string
}

type Form struct {
	Values map[string][]string
	Files  []*StagedFile
}

// Value returns the first value of a field.
func (self *Form) Value(field string) string {
	values := self.Values[field]
	if len(values) > 0 {
		return values[0]
	}
	return ""
}

type Parser struct {
	boundary    string
	staging_dir string
	max_buffer  int64

	// Carry over between the delimiter marker length and the fixed
	// tail, whichever is larger.
	tail int

	state   parserState
	pending []byte
	body    bytes.Buffer

	current *os.File
	counter int
	staged  []string
}

func NewParser(
	config_obj *config.Config,
	boundary, staging_dir string) (*Parser, error) {

	if boundary == "" {
		return nil, errors.NewUploadError("missing multipart boundary")
	}

	max_buffer := int64(100 * 1024 * 1024)
	if config_obj != nil && config_obj.Ingestion != nil &&
		config_obj.Ingestion.MaxBufferSize > 0 {
		max_buffer = config_obj.Ingestion.MaxBufferSize
	}

	tail := tailSize
	if marker_len := len(boundary) + 4; marker_len > tail {
		tail = marker_len
	}

	return &Parser{
		boundary:    boundary,
		staging_dir: staging_dir,
		max_buffer:  max_buffer,
		tail:        tail,
	}, nil
}

// Write feeds the next chunk of the request body.
func (self *Parser) Write(chunk []byte) (int, error) {
	self.pending = append(self.pending, chunk...)

	err := self.process(false)
	if err != nil {
		return 0, err
	}

	return len(chunk), nil
}

// process advances the state machine over the pending bytes. Unless
// flushing, the trailing carry stays unconsumed so a delimiter split
// across chunks is seen whole on the next write.
func (self *Parser) process(flush bool) error {
	delimiter := []byte("--" + self.boundary)
	part_end := []byte("\r\n--" + self.boundary)

	for {
		switch self.state {
		case findPartStart:
			idx := bytes.Index(self.pending, delimiter)
			if idx < 0 {
				// Preamble bytes before the first delimiter carry no
				// information.
				self.dropAllButTail(flush)
				return nil
			}

			rest := self.pending[idx+len(delimiter):]
			if len(rest) < 2 && !flush {
				self.pending = self.pending[idx:]
				return nil
			}

			if bytes.HasPrefix(rest, []byte("--")) {
				self.body.WriteString("--" + self.boundary + "--\r\n")
				self.state = parseDone
				self.pending = nil
				return nil
			}

			rest = bytes.TrimPrefix(rest, []byte("\r\n"))
			self.pending = rest
			self.state = readingPartHeader

		case readingPartHeader:
			idx := bytes.Index(self.pending, []byte("\r\n\r\n"))
			if idx < 0 {
				if flush {
					return errors.NewUploadError(
						"truncated part header")
				}
				if int64(len(self.pending)) > self.max_buffer {
					return errors.NewUploadError(
						"part header exceeds buffer limit")
				}
				return nil
			}

			headers := self.pending[:idx]
			self.pending = self.pending[idx+4:]

			self.body.WriteString("--" + self.boundary + "\r\n")
			self.body.Write(headers)
			self.body.WriteString("\r\n\r\n")

			if partIsFile(headers) {
				fd, err := self.nextStagingFile()
				if err != nil {
					return err
				}
				self.current = fd
				self.state = streamingFileBody
			} else {
				self.state = bufferingOtherBody
			}

		case streamingFileBody:
			idx := bytes.Index(self.pending, part_end)
			if idx < 0 {
				if flush {
					return errors.NewUploadError(
						"stream ended inside a file part")
				}

				safe := len(self.pending) - self.tail
				if safe <= 0 {
					return nil
				}

				_, err := self.current.Write(self.pending[:safe])
				if err != nil {
					return errors.NewUploadError(
						"staging write failed: %v", err)
				}
				self.pending = self.pending[safe:]
				return nil
			}

			// The delimiter's leading \r\n belongs to the protocol,
			// not the file.
			_, err := self.current.Write(self.pending[:idx])
			if err != nil {
				return errors.NewUploadError(
					"staging write failed: %v", err)
			}

			staged_path := self.current.Name()
			err = self.current.Close()
			self.current = nil
			if err != nil {
				return errors.NewUploadError(
					"staging close failed: %v", err)
			}

			// The reconstructed body carries the staging path in
			// place of the file bytes.
			self.body.WriteString(staged_path)
			self.body.WriteString("\r\n")

			self.pending = self.pending[idx+2:]
			self.state = findPartStart

		case bufferingOtherBody:
			idx := bytes.Index(self.pending, part_end)
			if idx < 0 {
				if flush {
					return errors.NewUploadError(
						"stream ended inside a part")
				}

				safe := len(self.pending) - self.tail
				if safe <= 0 {
					return nil
				}

				self.body.Write(self.pending[:safe])
				self.pending = self.pending[safe:]

				if int64(self.body.Len()) > self.max_buffer {
					return errors.NewUploadError(
						"request body exceeds %v bytes",
						self.max_buffer)
				}
				return nil
			}

			self.body.Write(self.pending[:idx])
			self.body.WriteString("\r\n")

			if int64(self.body.Len()) > self.max_buffer {
				return errors.NewUploadError(
					"request body exceeds %v bytes", self.max_buffer)
			}

			self.pending = self.pending[idx+2:]
			self.state = findPartStart

		case parseDone:
			self.pending = nil
			return nil
		}
	}
}

func (self *Parser) dropAllButTail(flush bool) {
	if flush {
		self.pending = nil
		return
	}

	if len(self.pending) > self.tail {
		self.pending = self.pending[len(self.pending)-self.tail:]
	}
}

func (self *Parser) nextStagingFile() (*os.File, error) {
	self.counter++
	staged_path := filepath.Join(self.staging_dir,
		fmt.Sprintf("part_%d", self.counter))

	fd, err := os.OpenFile(staged_path,
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewUploadError(
			"unable to create staging file: %v", err)
	}

	self.staged = append(self.staged, staged_path)
	return fd, nil
}

// Finish consumes the remaining carry, requires the terminal
// delimiter and parses the reconstructed body conventionally. File
// part contents in the returned form are the staging paths.
func (self *Parser) Finish() (*Form, error) {
	err := self.process(true)
	if err != nil {
		return nil, err
	}

	if self.state != parseDone {
		return nil, errors.NewUploadError(
			"multipart stream ended without a terminal delimiter")
	}

	reader := multipart.NewReader(
		bytes.NewReader(self.body.Bytes()), self.boundary)

	form := &Form{Values: make(map[string][]string)}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewUploadError(
				"reconstructed body failed to parse: %v", err)
		}

		content, err := ioutil.ReadAll(part)
		if err != nil {
			return nil, errors.NewUploadError(
				"reconstructed body failed to parse: %v", err)
		}

		if part.FileName() != "" {
			form.Files = append(form.Files, &StagedFile{
				Field:    part.FormName(),
				FileName: part.FileName(),
				Path:     string(content),
			})
		} else {
			form.Values[part.FormName()] = append(
				form.Values[part.FormName()], string(content))
		}
	}

	return form, nil
}

// Close tears the parser down and removes every staged file. Safe to
// call whether or not Finish ran.
func (self *Parser) Close() {
	if self.current != nil {
		self.current.Close()
		self.current = nil
	}

	for _, staged_path := range self.staged {
		os.Remove(staged_path)
	}
	self.staged = nil
}

// partIsFile inspects the part headers for a filename parameter.
func partIsFile(headers []byte) bool {
	for _, line := range strings.Split(string(headers), "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found ||
			!strings.EqualFold(strings.TrimSpace(name),
				"Content-Disposition") {
			continue
		}

		_, params, err := mime.ParseMediaType(strings.TrimSpace(value))
		if err != nil {
			continue
		}

		_, pres := params["filename"]
		return pres
	}

	return false
}
