// Package config loads typed configuration structs from the environment.
//
// It wraps github.com/caarlos0/env/v11 for tag-driven parsing and
// github.com/joho/godotenv for .env files. Each struct type is parsed once and
// cached; Reset clears the cache between tests.
//
//	var pgCfg pg.Config
//	config.MustLoad(&pgCfg)
package config
