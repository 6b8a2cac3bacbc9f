package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"www.velocidex.com/golang/basilisk/json"
	"www.velocidex.com/golang/basilisk/subjects"
)

var (
	fetch_command = app.Command(
		"fetch", "Acquire a subject through a scale's upload capability.")

	fetch_command_scale = fetch_command.Arg(
		"scale", "The scale to fetch with (e.g. url).").Required().String()

	fetch_command_args = fetch_command.Flag(
		"arg", "Upload argument as key=value (repeatable).").Strings()

	fetch_command_name = fetch_command.Flag(
		"name", "Override the stored name.").String()

	fetch_command_type = fetch_command.Flag(
		"type", "Subject file type.").Default("file").
		Enum("file", "memory")
)

func doFetch() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := startServices(config_obj)
	if err != nil {
		return err
	}
	defer services.Close()

	subject, err := services.Ingestor.UploadWithScale(
		context.Background(), services.Registry,
		*fetch_command_scale, parseArgList(*fetch_command_args),
		*fetch_command_name, subjects.FileType(*fetch_command_type))
	if err != nil {
		return err
	}

	fmt.Printf("%v %v (%v)\n", subject.Sha256Digest, subject.Name,
		humanize.Bytes(uint64(subject.Size)))
	fmt.Println(json.MustMarshalString(subject.ToDict()))

	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case fetch_command.FullCommand():
			FatalIfError(fetch_command, doFetch)

		default:
			return false
		}
		return true
	})
}
