package config

import (
	"flag"
	"os"

	"github.com/pkg/errors"
)

// DefaultFile config file used when neither -config nor TRIBECA_CONFIG_FILE is given.
const DefaultFile = "tribeca.yaml"

// EnvConfigFile environment variable holding the config file path.
const EnvConfigFile = "TRIBECA_CONFIG_FILE"

// Flags command line options.
type Flags struct {
	ConfigPath string
	Setup      bool
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string) (Flags, error) {
	def := DefaultFile
	if v, ok := os.LookupEnv(EnvConfigFile); ok && v != "" {
		def = v
	}

	var f Flags
	fs := flag.NewFlagSet("tribeca", flag.ContinueOnError)
	fs.StringVar(&f.ConfigPath, "config", def, "path to yaml config")
	fs.BoolVar(&f.Setup, "setup", false, "run the configuration wizard and write the config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, errors.Wrap(err, "parse flags")
	}

	return f, nil
}

// Get parses flags and loads the config they point to.
func Get(args []string) (Flags, Config, error) {
	f, err := ParseFlags(args)
	if err != nil {
		return Flags{}, Config{}, err
	}
	if f.Setup {
		return f, Config{}, nil
	}

	p, err := NewProvider(f.ConfigPath)
	if err != nil {
		return Flags{}, Config{}, err
	}
	cfg, err := Load(p)
	if err != nil {
		return Flags{}, Config{}, errors.Wrapf(err, "load config from %s", f.ConfigPath)
	}

	return f, cfg, nil
}
