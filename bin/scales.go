package main

import (
	"fmt"
	"strings"

	"www.velocidex.com/golang/basilisk/scales"
	"www.velocidex.com/golang/basilisk/scales/schema"
	"www.velocidex.com/golang/basilisk/subjects"
)

var (
	scales_command = app.Command(
		"scales", "Inspect the loaded analysis scales.")

	scales_command_list = scales_command.Command(
		"list", "List every loaded scale.")

	scales_command_list_type = scales_command_list.Flag(
		"type", "Only scales supporting this file type.").
		Default("").Enum("", "file", "memory")

	scales_command_show = scales_command.Command(
		"show", "Show a scale's commands and arguments.")

	scales_command_show_name = scales_command_show.Arg(
		"name", "The scale name.").Required().String()

	scales_command_check = scales_command.Command(
		"check", "Verify scales load and report their capabilities.")

	scales_command_check_names = scales_command_check.Arg(
		"names", "Scales to check (default all).").Strings()
)

func doScalesList() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	registry := scales.NewRegistry(config_obj)
	err = registry.Load(nil)
	if err != nil {
		return err
	}

	file_type := subjects.FileType(*scales_command_list_type)
	for _, info := range registry.List(file_type) {
		capabilities := make([]string, 0, len(info.Capabilities))
		for _, capability := range info.Capabilities {
			capabilities = append(capabilities, string(capability))
		}

		fmt.Printf("%-12v %-6v %-28v %v\n", info.Name, info.Version,
			strings.Join(capabilities, ","), info.Description)
	}

	return nil
}

func doScalesShow() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	registry := scales.NewRegistry(config_obj)
	err = registry.Load(nil)
	if err != nil {
		return err
	}

	scale, err := registry.Get(*scales_command_show_name, subjects.ANY)
	if err != nil {
		return err
	}

	fmt.Printf("%v %v - %v\n", scale.Name, scale.Version,
		scale.Description)

	commands, err := scale.GetCommands()
	if err == nil {
		fmt.Printf("\ncommands:\n")
		for _, spec := range commands.List() {
			autorun := ""
			if spec.Autorun {
				autorun = fmt.Sprintf(" [autorun on %v]", spec.Mime)
			}
			fmt.Printf("  %v%v\n    %v\n", spec.Name, autorun, spec.Info)
			printArgSpec(spec.Args)
		}
	}

	iface, err := scale.GetInterface()
	if err == nil {
		fmt.Printf("\ninterface:\n")
		for _, spec := range iface.List() {
			fmt.Printf("  %v (%v)\n    %v\n",
				spec.Name, spec.Type, spec.Info)
			printArgSpec(spec.Args)
		}
	}

	upload, err := scale.GetUpload()
	if err == nil {
		fmt.Printf("\nupload:\n    %v\n", upload.Info)
		printArgSpec(upload.Args)
	}

	return nil
}

func doScalesCheck() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	registry := scales.NewRegistry(config_obj)

	var selection []string
	if len(*scales_command_check_names) > 0 {
		selection = *scales_command_check_names
	}

	err = registry.Load(selection)
	if err != nil {
		return err
	}

	loaded := registry.List(subjects.ANY)
	by_name := make(map[string]bool)
	for _, info := range loaded {
		by_name[info.Name] = true

		capabilities := make([]string, 0, len(info.Capabilities))
		for _, capability := range info.Capabilities {
			capabilities = append(capabilities, string(capability))
		}
		fmt.Printf("%-12v OK (%v)\n", info.Name,
			strings.Join(capabilities, ","))
	}

	failed := false
	for _, name := range *scales_command_check_names {
		if !by_name[name] {
			fmt.Printf("%-12v FAILED to load\n", name)
			failed = true
		}
	}

	if failed {
		return fmt.Errorf("some scales failed to load")
	}
	return nil
}

func printArgSpec(spec *schema.Spec) {
	if spec == nil {
		return
	}

	for _, field := range spec.Fields {
		required := ""
		if field.Required {
			required = " (required)"
		}
		fmt.Printf("      %v: %v%v  %v\n",
			field.Name, field.Kind, required, field.Info)
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case scales_command_list.FullCommand():
			FatalIfError(scales_command_list, doScalesList)

		case scales_command_show.FullCommand():
			FatalIfError(scales_command_show, doScalesShow)

		case scales_command_check.FullCommand():
			FatalIfError(scales_command_check, doScalesCheck)

		default:
			return false
		}
		return true
	})
}
