package main

import (
	"fmt"
	"time"

	"www.velocidex.com/golang/basilisk/json"
	"www.velocidex.com/golang/basilisk/records"
)

var (
	results_command = app.Command(
		"results", "List stored command results for a subject.")

	results_command_digest = results_command.Arg(
		"sha256", "The subject digest.").Required().String()

	results_command_scale = results_command.Flag(
		"scale", "Only results from this scale.").String()

	results_command_command = results_command.Flag(
		"command", "Only results of this command.").String()

	results_command_args = results_command.Flag(
		"arg", "Only results with this exact argument set "+
			"(key=value, repeatable).").Strings()

	results_command_output = results_command.Flag(
		"output", "Print the stored output of each result.").Bool()
)

func doResults() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := startServices(config_obj)
	if err != nil {
		return err
	}
	defer services.Close()

	args_key := ""
	if len(*results_command_args) > 0 {
		args_key = records.NormalizeArgs(
			parseArgList(*results_command_args))
	}

	matched, err := services.Records.Query(
		*results_command_digest,
		*results_command_scale,
		*results_command_command,
		args_key)
	if err != nil {
		return err
	}

	for _, record := range matched {
		fmt.Printf("%v %v/%v %v %v\n",
			time.Unix(record.Timestamp, 0).UTC().Format(time.RFC3339),
			record.Scale, record.Command, record.Status, record.ArgsKey)

		if *results_command_output && record.OutputID != "" {
			output, err := services.Records.Output(record)
			if err != nil {
				return err
			}
			fmt.Println(json.MustMarshalString(output))
		}
	}

	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case results_command.FullCommand():
			FatalIfError(results_command, doResults)

		default:
			return false
		}
		return true
	})
}
