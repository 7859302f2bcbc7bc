package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps persistent flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"debug":      "debug",
	"output":     "output",
}

// addGlobalFlags declares the flags shared by every command.
func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.Bool("debug", false, "build pretty output and inject the live reload script (same as DEBUG=1)")
	flags.StringP("output", "o", "./dist", "output directory")
}

// bindFlags binds every global flag to its configuration key so that a flag
// given on the command line wins over the environment and the config file.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %q is not declared", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag %q: %w", name, err)
		}
	}
	return nil
}
