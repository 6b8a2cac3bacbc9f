package main

import (
	"context"
	"fmt"

	"www.velocidex.com/golang/basilisk/dispatch"
	"www.velocidex.com/golang/basilisk/json"
	"www.velocidex.com/golang/basilisk/scales"
	"www.velocidex.com/golang/basilisk/subjects"
)

var (
	run_command = app.Command(
		"run", "Run a scale command against a stored subject.")

	run_command_digest = run_command.Arg(
		"sha256", "The subject digest.").Required().String()

	run_command_scale = run_command.Arg(
		"scale", "The scale name.").Required().String()

	run_command_command = run_command.Arg(
		"command", "The command name.").Required().String()

	run_command_args = run_command.Flag(
		"arg", "Command argument as key=value (repeatable).").Strings()

	run_command_type = run_command.Flag(
		"type", "Subject file type.").Default("file").
		Enum("file", "memory")

	run_command_format = run_command.Flag(
		"format", "Output format.").Default("json").
		Enum("json", "markdown", "plaintext")

	run_command_async = run_command.Flag(
		"async", "Queue the command and return immediately.").Bool()

	run_command_timeout = run_command.Flag(
		"timeout", "Soft timeout in seconds (0 uses the configured default).").
		Int()
)

func doRun() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := startServices(config_obj)
	if err != nil {
		return err
	}
	defer services.Close()

	record, output, err := services.Dispatcher.Queue(
		context.Background(), &dispatch.Request{
			Sha256Digest: *run_command_digest,
			FileType:     subjects.FileType(*run_command_type),
			Scale:        *run_command_scale,
			Command:      *run_command_command,
			Args:         parseArgList(*run_command_args),
			Asynchronous: *run_command_async,
			Timeout:      *run_command_timeout,
		})

	// A failed command still produced a record and an error output
	// worth showing.
	if record == nil {
		return err
	}

	fmt.Printf("%v\n", json.MustMarshalString(record.ToDict()))

	if output == nil {
		return nil
	}

	raw, marshal_err := json.Marshal(output)
	if marshal_err != nil {
		return marshal_err
	}

	rendered, render_err := renderOutput(services, raw)
	if render_err != nil {
		return render_err
	}
	fmt.Println(rendered)

	return err
}

func renderOutput(services *Services, raw []byte) (string, error) {
	if *run_command_format == scales.FORMAT_JSON {
		return string(raw), nil
	}

	scale, err := services.Registry.Get(
		*run_command_scale, subjects.ANY)
	if err != nil {
		return "", err
	}

	commands, err := scale.GetCommands()
	if err != nil {
		return "", err
	}

	spec, err := commands.Get(*run_command_command)
	if err != nil {
		return "", err
	}

	return scales.FormatCommand(spec, *run_command_format, raw)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case run_command.FullCommand():
			FatalIfError(run_command, doRun)

		default:
			return false
		}
		return true
	})
}
