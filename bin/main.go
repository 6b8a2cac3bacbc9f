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
package main

import (
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/logging"

	// Register the built-in scales.
	_ "www.velocidex.com/golang/basilisk/scales/hashes"
	_ "www.velocidex.com/golang/basilisk/scales/strings"
	_ "www.velocidex.com/golang/basilisk/scales/url"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("basilisk",
		"A binary analysis artifact store.")

	config_path = app.Flag("config", "The configuration file.").Short('c').
			Envar("BASILISK_CONFIG").String()

	verbose_flag = app.Flag(
		"verbose", "Enable verbose logging.").Short('v').
		Default("false").Bool()

	command_handlers []CommandHandler
)

func makeDefaultConfigLoader() *config.Loader {
	return config.NewLoader().
		WithFileLoader(*config_path).
		WithEnvLoader("BASILISK_CONFIG").
		WithNullLoader().
		WithVerbose(*verbose_flag)
}

func loadConfig() (*config.Config, error) {
	return makeDefaultConfigLoader().LoadAndValidate()
}

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate).DefaultEnvars()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !*verbose_flag {
		logging.SuppressLogging = true
		logging.Reset()
	}

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}
}
