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
package scales

import (
	"io/ioutil"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/logging"
	"www.velocidex.com/golang/basilisk/subjects"
	"www.velocidex.com/golang/basilisk/utils"
)

var (
	reg_mu sync.Mutex

	// Scales compiled into the binary register here from their
	// package init().
	builtin_definitions []*Definition

	// Scales shipped alongside the binary as separate packages
	// register here.
	packaged_definitions []*Definition
)

func RegisterBuiltin(definition *Definition) {
	reg_mu.Lock()
	defer reg_mu.Unlock()

	builtin_definitions = append(builtin_definitions, definition)
}

func RegisterPackaged(definition *Definition) {
	reg_mu.Lock()
	defer reg_mu.Unlock()

	packaged_definitions = append(packaged_definitions, definition)
}

type ScaleInfo struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Version      string              `json:"version"`
	Author       string              `json:"author"`
	Supports     []subjects.FileType `json:"supports"`
	Capabilities []CapabilityKind    `json:"capabilities"`
}

type AutorunSpec struct {
	Scale   string
	Command string
	Mime    string
}

type Registry struct {
	mu sync.Mutex

	config_obj *config.Config
	scales     map[string]*Scale
}

func NewRegistry(config_obj *config.Config) *Registry {
	return &Registry{
		config_obj: config_obj,
		scales:     make(map[string]*Scale),
	}
}

// Load builds the selected scales from all three sources in order:
// built-in, packaged, then the configured plugin directories. Later
// sources override earlier ones of the same name. A nil selection
// loads everything; an empty selection loads nothing. Individual
// load failures are logged and skipped - one broken plugin must not
// take the process down.
func (self *Registry) Load(selection []string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	logger := logging.GetLogger(self.config_obj, &logging.ScalesComponent)

	self.scales = make(map[string]*Scale)

	selected := func(name string) bool {
		if selection == nil {
			return true
		}
		return utils.InString(selection, name)
	}

	reg_mu.Lock()
	definitions := append([]*Definition{}, builtin_definitions...)
	definitions = append(definitions, packaged_definitions...)
	reg_mu.Unlock()

	for _, definition := range definitions {
		if !selected(definition.Name) {
			continue
		}

		scale, err := definition.Build(self.config_obj)
		if err != nil {
			logger.Error("unable to load scale %v: %v",
				definition.Name, err)
			continue
		}

		self.scales[definition.Name] = scale
	}

	if self.config_obj.Scales != nil {
		for _, dir := range self.config_obj.Scales.Directories {
			self.loadDirectory(dir, selected, logger)
		}
	}

	logger.Info("loaded %v scales", len(self.scales))
	return nil
}

// loadDirectory scans a user directory for Go plugin shared objects
// exporting a "Scale" symbol of type *Definition.
func (self *Registry) loadDirectory(
	dir string, selected func(string) bool, logger *logging.LogContext) {

	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		logger.Warn("unable to scan scale directory %v: %v", dir, err)
		return
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".so") {
			continue
		}

		so_path := filepath.Join(dir, entry.Name())
		loaded, err := plugin.Open(so_path)
		if err != nil {
			logger.Error("unable to open plugin %v: %v", so_path, err)
			continue
		}

		symbol, err := loaded.Lookup("Scale")
		if err != nil {
			logger.Error("plugin %v exports no Scale symbol", so_path)
			continue
		}

		definition, ok := symbol.(*Definition)
		if !ok {
			definition_ptr, ok := symbol.(**Definition)
			if !ok {
				logger.Error("plugin %v Scale symbol has wrong type",
					so_path)
				continue
			}
			definition = *definition_ptr
		}

		if !selected(definition.Name) {
			continue
		}

		scale, err := definition.Build(self.config_obj)
		if err != nil {
			logger.Error("unable to load scale %v from %v: %v",
				definition.Name, so_path, err)
			continue
		}

		self.scales[definition.Name] = scale
	}
}

// Reload re-scans every source with no selection filter.
func (self *Registry) Reload() error {
	return self.Load(nil)
}

// Get returns the named scale if it supports the file type.
func (self *Registry) Get(
	name string, file_type subjects.FileType) (*Scale, error) {

	self.mu.Lock()
	defer self.mu.Unlock()

	scale, pres := self.scales[name]
	if !pres {
		return nil, errors.NewNotFoundError("no such scale %v", name)
	}

	if !scale.SupportsFileType(file_type) {
		return nil, errors.NewUnsupportedError(
			"scale %v does not support %v subjects", name, file_type)
	}

	return scale, nil
}

// GetCapability resolves a capability of a scale in one step.
func (self *Registry) GetCapability(
	name string, kind CapabilityKind) (interface{}, error) {

	scale, err := self.Get(name, subjects.ANY)
	if err != nil {
		return nil, err
	}

	switch kind {
	case COMMANDS:
		return scale.GetCommands()
	case INTERFACE:
		return scale.GetInterface()
	case UPLOAD:
		return scale.GetUpload()
	}

	return nil, errors.NewUnsupportedError("unknown capability %v", kind)
}

func (self *Registry) List(file_type subjects.FileType) []ScaleInfo {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([]ScaleInfo, 0, len(self.scales))
	for _, scale := range self.scales {
		if !scale.SupportsFileType(file_type) {
			continue
		}

		result = append(result, ScaleInfo{
			Name:         scale.Name,
			Description:  scale.Description,
			Version:      scale.Version,
			Author:       scale.Author,
			Supports:     scale.Supports,
			Capabilities: scale.Capabilities(),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// Autoruns flattens the autorun command declarations of every loaded
// scale supporting the file type.
func (self *Registry) Autoruns(file_type subjects.FileType) []AutorunSpec {
	self.mu.Lock()
	defer self.mu.Unlock()

	var result []AutorunSpec
	for _, scale := range self.scales {
		if !scale.SupportsFileType(file_type) {
			continue
		}

		if scale.commands == nil {
			continue
		}

		for _, spec := range scale.commands.List() {
			if spec.Autorun {
				result = append(result, AutorunSpec{
					Scale:   scale.Name,
					Command: spec.Name,
					Mime:    spec.Mime,
				})
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Scale != result[j].Scale {
			return result[i].Scale < result[j].Scale
		}
		return result[i].Command < result[j].Command
	})

	return result
}
