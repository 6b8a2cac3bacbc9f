package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"www.velocidex.com/golang/basilisk/ingest"
	"www.velocidex.com/golang/basilisk/json"
	"www.velocidex.com/golang/basilisk/subjects"
)

var (
	ingest_command = app.Command(
		"ingest", "Store local files as new subjects.")

	ingest_command_paths = ingest_command.Arg(
		"paths", "Files to ingest.").Required().ExistingFiles()

	ingest_command_name = ingest_command.Flag(
		"name", "Override the stored name (single file only).").String()

	ingest_command_type = ingest_command.Flag(
		"type", "Subject file type.").Default("file").
		Enum("file", "memory")

	ingest_command_zip = ingest_command.Flag(
		"extract_zip", "Treat each file as a single member zip.").Bool()

	ingest_command_password = ingest_command.Flag(
		"password", "Zip password to try first.").String()
)

func doIngest() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := startServices(config_obj)
	if err != nil {
		return err
	}
	defer services.Close()

	file_type := subjects.FileType(*ingest_command_type)

	for _, path := range *ingest_command_paths {
		form := &ingest.Form{
			Values: make(map[string][]string),
			Files: []*ingest.StagedFile{{
				Field:    "file",
				FileName: filepath.Base(path),
				Path:     path,
			}},
		}

		if *ingest_command_name != "" {
			form.Values["name"] = []string{*ingest_command_name}
		}
		if *ingest_command_zip {
			form.Values["extract_zip"] = []string{"true"}
		}
		if *ingest_command_password != "" {
			form.Values["password"] = []string{*ingest_command_password}
		}

		stored, err := services.Ingestor.StoreForm(
			context.Background(), form, file_type)
		if err != nil {
			return err
		}

		for _, subject := range stored {
			fmt.Printf("%v %v (%v)\n", subject.Sha256Digest,
				subject.Name, humanize.Bytes(uint64(subject.Size)))
			fmt.Println(json.MustMarshalString(subject.ToDict()))
		}
	}

	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case ingest_command.FullCommand():
			FatalIfError(ingest_command, doIngest)

		default:
			return false
		}
		return true
	})
}
