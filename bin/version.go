package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"gopkg.in/yaml.v2"
)

var (
	version_command = app.Command(
		"version", "Report the binary version and build information.")
)

type VersionInfo struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	GoVersion string `yaml:"go_version"`
	Platform  string `yaml:"platform"`
}

func getVersion() *VersionInfo {
	return &VersionInfo{
		Name:      "basilisk",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func doVersion() error {
	serialized, err := yaml.Marshal(getVersion())
	if err != nil {
		return err
	}

	fmt.Printf("%v", string(serialized))

	if *verbose_flag {
		info, ok := debug.ReadBuildInfo()
		if ok {
			fmt.Printf("\n\nBuild Info:\n%v\n", info)
		}
	}

	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case version_command.FullCommand():
			FatalIfError(version_command, doVersion)

		default:
			return false
		}
		return true
	})
}
