package config

import "github.com/ilyakaznacheev/cleanenv"

// parseEnv overlays Config with environment variables named by the env
// struct tags. Unset variables leave the current value untouched. A
// malformed value (e.g. an unparsable duration) panics, like a broken JSON
// file does.
func parseEnv(config *Config) {
	if err := cleanenv.ReadEnv(config); err != nil {
		panic(err)
	}
}
