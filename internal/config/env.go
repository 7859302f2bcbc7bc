package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for per-key environment overrides (STATICPRESS_SERVER_PORT).
const EnvPrefix = "STATICPRESS"

// DebugEnv is the environment variable selecting debug mode.
const DebugEnv = "DEBUG"

// LoadEnvFiles loads .env and .env.local from dir into the process
// environment. Variables already set are not overwritten, and missing files
// are skipped. It returns the files that were loaded.
func LoadEnvFiles(dir string) ([]string, error) {
	var loaded []string
	for _, name := range []string{".env", ".env.local"} {
		path := name
		if dir != "" && dir != "." {
			path = dir + string(os.PathSeparator) + name
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, err
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// BindEnv wires environment variables into v: STATICPRESS_<SECTION>_<KEY>
// for every key, plus the bare DEBUG variable for the build mode.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v.BindEnv("debug", DebugEnv, EnvPrefix+"_"+DebugEnv)
}
