package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"www.velocidex.com/golang/basilisk/json"
	"www.velocidex.com/golang/basilisk/subjects"
)

var (
	subjects_command = app.Command(
		"subjects", "Inspect and manage stored subjects.")

	subjects_command_list = subjects_command.Command(
		"list", "List stored subjects.")

	subjects_command_list_type = subjects_command_list.Flag(
		"type", "Only subjects of this file type.").
		Default("").Enum("", "file", "memory")

	subjects_command_show = subjects_command.Command(
		"show", "Show a subject's metadata.")

	subjects_command_show_digest = subjects_command_show.Arg(
		"sha256", "The subject digest.").Required().String()

	subjects_command_show_type = subjects_command_show.Flag(
		"type", "Subject file type.").Default("file").
		Enum("file", "memory")

	subjects_command_show_hexdump = subjects_command_show.Flag(
		"hexdump", "Also hexdump the first bytes.").Bool()

	subjects_command_rm = subjects_command.Command(
		"rm", "Delete a subject, its results and (if unshared) its bytes.")

	subjects_command_rm_digest = subjects_command_rm.Arg(
		"sha256", "The subject digest.").Required().String()

	subjects_command_rm_type = subjects_command_rm.Flag(
		"type", "Subject file type.").Default("file").
		Enum("file", "memory")

	subjects_command_link = subjects_command.Command(
		"link", "Record a parent/child relationship between subjects.")

	subjects_command_link_parent = subjects_command_link.Arg(
		"parent", "The parent digest.").Required().String()

	subjects_command_link_child = subjects_command_link.Arg(
		"child", "The child digest.").Required().String()

	subjects_command_link_tag = subjects_command_link.Flag(
		"tag", "Provenance tag for the link.").Default("manual").String()
)

func doSubjectsList() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := startServices(config_obj)
	if err != nil {
		return err
	}
	defer services.Close()

	listed, err := services.Subjects.List(
		subjects.FileType(*subjects_command_list_type))
	if err != nil {
		return err
	}

	for _, subject := range listed {
		fmt.Printf("%v %-6v %-10v %v\n", subject.Sha256Digest,
			subject.FileType,
			humanize.Bytes(uint64(subject.Size)), subject.Name)
	}

	return nil
}

func doSubjectsShow() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := startServices(config_obj)
	if err != nil {
		return err
	}
	defer services.Close()

	subject, err := services.Subjects.Get(
		*subjects_command_show_digest,
		subjects.FileType(*subjects_command_show_type))
	if err != nil {
		return err
	}

	fmt.Println(json.MustMarshalString(subject.ToDict()))

	if *subjects_command_show_hexdump {
		handle, err := subjects.NewHandle(
			config_obj, services.FileStore, subject)
		if err != nil {
			return err
		}
		defer handle.Close()

		rows, err := handle.Hexdump(0, 256)
		if err != nil {
			return err
		}

		for _, row := range rows {
			fmt.Println(row)
		}
	}

	return nil
}

func doSubjectsRm() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := startServices(config_obj)
	if err != nil {
		return err
	}
	defer services.Close()

	return services.Subjects.Delete(
		*subjects_command_rm_digest,
		subjects.FileType(*subjects_command_rm_type))
}

func doSubjectsLink() error {
	config_obj, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := startServices(config_obj)
	if err != nil {
		return err
	}
	defer services.Close()

	return services.Subjects.AddRelationship(
		*subjects_command_link_parent,
		*subjects_command_link_child,
		*subjects_command_link_tag)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case subjects_command_list.FullCommand():
			FatalIfError(subjects_command_list, doSubjectsList)

		case subjects_command_show.FullCommand():
			FatalIfError(subjects_command_show, doSubjectsShow)

		case subjects_command_rm.FullCommand():
			FatalIfError(subjects_command_rm, doSubjectsRm)

		case subjects_command_link.FullCommand():
			FatalIfError(subjects_command_link, doSubjectsLink)

		default:
			return false
		}
		return true
	})
}
