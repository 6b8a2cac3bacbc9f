package main

import (
	"context"
	"fmt"

	"www.velocidex.com/golang/basilisk/json"
	"www.velocidex.com/golang/basilisk/subjects"
)

var (
	pull_command = app.Command(
		"pull", "Invoke a scale's interface entry for a subject.")

	pull_command_digest = pull_command.Arg(
		"sha256", "The subject digest.").Required().String()

	pull_command_scale = pull_command.Arg(
		"scale", "The scale name.").Required().String()

	pull_command_entry = pull_command.Arg(
		"entry", "The interface entry name.").Required().String()

	pull_command_args = pull_command.Flag(
		"arg", "Argument as key=value (repeatable).").Strings()

	pull_command_type = pull_command.Flag(
		"type", "Subject file type.").Default("file").
		Enum("file", "memory")
)

func doPull() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := startServices(config_obj)
	if err != nil {
		return err
	}
	defer services.Close()

	file_type := subjects.FileType(*pull_command_type)
	subject, err := services.Subjects.Get(*pull_command_digest, file_type)
	if err != nil {
		return err
	}

	scale, err := services.Registry.Get(*pull_command_scale, file_type)
	if err != nil {
		return err
	}

	iface, err := scale.GetInterface()
	if err != nil {
		return err
	}

	handle, err := subjects.NewHandle(
		config_obj, services.FileStore, subject)
	if err != nil {
		return err
	}
	defer handle.Close()

	output, err := iface.Invoke(context.Background(), config_obj,
		*pull_command_entry, parseArgList(*pull_command_args), handle)
	if err != nil {
		return err
	}

	fmt.Println(json.MustMarshalString(output))
	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case pull_command.FullCommand():
			FatalIfError(pull_command, doPull)

		default:
			return false
		}
		return true
	})
}
