package config

import "github.com/spf13/viper"

// setDefaults seeds every key LoadConfig can leave unset so a bare
// bookkeepd.toml (or no file at all, driven purely by flags/env) still
// produces a valid Config.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":7420")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.path", "")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 4096)

	v.SetDefault("rollup.interval_seconds", 60)
	v.SetDefault("rollup.batch_size", 500)
}
