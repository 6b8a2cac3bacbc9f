package main

import (
	"strings"

	kingpin "github.com/alecthomas/kingpin/v2"
)

func FatalIfError(command *kingpin.CmdClause, fn func() error) {
	err := fn()
	kingpin.FatalIfError(err, "%v:", command.FullCommand())
}

// parseArgList turns repeated key=value flags into the loosely typed
// argument map scale schemas validate. Values stay strings - the
// schema coerces them.
func parseArgList(raw []string) map[string]interface{} {
	result := make(map[string]interface{})
	for _, item := range raw {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		} else {
			result[parts[0]] = ""
		}
	}
	return result
}
