package config

import (
	"os"

	"algopack-api/pkg/confkit"
	"algopack-api/pkg/iss"
)

// DefaultConfigPath is where the daemon looks when -f is not given.
const DefaultConfigPath = "etc/ingest.yaml"

// MustLoadISS returns ISS client settings for tools that run without the
// daemon config: etc/iss.yaml at the project root when present, otherwise
// environment-only defaults (APIKEY et al.). Panics on broken settings.
func MustLoadISS() *iss.Config {
	confkit.LoadDotenvOnce()
	path := confkit.MustProjectPath("etc/iss.yaml")
	if _, err := os.Stat(path); err == nil {
		cfg, err := iss.LoadConfig(path)
		if err != nil {
			panic(err)
		}
		return cfg
	}
	cfg, err := iss.ConfigFromEnv()
	if err != nil {
		panic(err)
	}
	return cfg
}
