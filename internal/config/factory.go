package config

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// FromCobraCmd creates a RTConfig instance from a cobra command object. It will panic if any
// errors are raised.
func FromCobraCmd(cmd *cobra.Command) *RTConfig {
	var flags *pflag.FlagSet
	if cmd.Name() == "rtctl" {
		flags = cmd.PersistentFlags()
	} else {
		flags = cmd.InheritedFlags()
	}

	var configPaths []string
	if flags.Lookup("config").Changed {
		fileLoc, err := flags.GetString("config")
		if err != nil {
			log.Fatal().Err(err).Msg("Could not get file location")
		}
		configPaths = append(configPaths, fileLoc)
	}

	conf, err := LoadConfig(configPaths...)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config file")
	}

	zerolog.SetGlobalLevel(conf.ZerologLevel())
	return conf
}
