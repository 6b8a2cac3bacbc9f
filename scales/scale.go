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

// Scales are analysis plugins. A scale declares which subject file
// types it supports and up to three capabilities - commands,
// interface and upload.
package scales

import (
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/logging"
	"www.velocidex.com/golang/basilisk/subjects"
)

type CapabilityKind string

const (
	COMMANDS  CapabilityKind = "commands"
	INTERFACE CapabilityKind = "interface"
	UPLOAD    CapabilityKind = "upload"
)

// A Definition is the static description of a scale. Capability
// constructors receive the config so they can refuse to build when a
// prerequisite (an external tool, a reachable endpoint) is missing.
type Definition struct {
	Name        string
	Description string
	Version     string
	Author      string

	// Supported subject file types. Empty means all.
	Supports []subjects.FileType

	Commands  func(config_obj *config.Config) (*Commands, error)
	Interface func(config_obj *config.Config) (*Interface, error)
	Upload    func(config_obj *config.Config) (*Upload, error)
}

// A Scale is a built Definition - its capability constructors have
// run.
type Scale struct {
	Definition

	commands *Commands
	iface    *Interface
	upload   *Upload
}

// Build runs the capability constructors. A constructor returning a
// SCALE error marks that capability unavailable and the scale loads
// without it. Any other error fails the whole scale.
func (self *Definition) Build(config_obj *config.Config) (*Scale, error) {
	logger := logging.GetLogger(config_obj, &logging.ScalesComponent)
	result := &Scale{Definition: *self}

	if self.Commands != nil {
		commands, err := self.Commands(config_obj)
		if err != nil {
			if errors.IsKind(err, errors.SCALE) {
				logger.Warn("scale %v: commands unavailable: %v",
					self.Name, err)
			} else {
				return nil, err
			}
		} else {
			result.commands = commands
		}
	}

	if self.Interface != nil {
		iface, err := self.Interface(config_obj)
		if err != nil {
			if errors.IsKind(err, errors.SCALE) {
				logger.Warn("scale %v: interface unavailable: %v",
					self.Name, err)
			} else {
				return nil, err
			}
		} else {
			result.iface = iface
		}
	}

	if self.Upload != nil {
		upload, err := self.Upload(config_obj)
		if err != nil {
			if errors.IsKind(err, errors.SCALE) {
				logger.Warn("scale %v: upload unavailable: %v",
					self.Name, err)
			} else {
				return nil, err
			}
		} else {
			result.upload = upload
		}
	}

	return result, nil
}

// SupportsFileType reports whether the scale accepts subjects of the
// given type. An unspecified type matches any scale.
func (self *Scale) SupportsFileType(file_type subjects.FileType) bool {
	if file_type == subjects.ANY || len(self.Supports) == 0 {
		return true
	}

	for _, supported := range self.Supports {
		if supported == file_type {
			return true
		}
	}

	return false
}

func (self *Scale) GetCommands() (*Commands, error) {
	if self.commands == nil {
		return nil, errors.NewUnsupportedError(
			"scale %v has no command capability", self.Name)
	}
	return self.commands, nil
}

func (self *Scale) GetInterface() (*Interface, error) {
	if self.iface == nil {
		return nil, errors.NewUnsupportedError(
			"scale %v has no interface capability", self.Name)
	}
	return self.iface, nil
}

func (self *Scale) GetUpload() (*Upload, error) {
	if self.upload == nil {
		return nil, errors.NewUnsupportedError(
			"scale %v has no upload capability", self.Name)
	}
	return self.upload, nil
}

func (self *Scale) Capabilities() []CapabilityKind {
	var result []CapabilityKind
	if self.commands != nil {
		result = append(result, COMMANDS)
	}
	if self.iface != nil {
		result = append(result, INTERFACE)
	}
	if self.upload != nil {
		result = append(result, UPLOAD)
	}
	return result
}
