// Package config loads dockerkit configuration with viper.
//
// Values come from, in increasing priority: a YAML config file, a .env file
// and the process environment. Environment variables use the DOCKERKIT_
// prefix and map onto nested keys, so DOCKERKIT_DOCKER_BINARY sets
// docker.binary and DOCKERKIT_LOGGING_LEVEL sets logging.level.
//
// # Usage
//
//	var cfg AppConfig
//	err := config.LoadConfig("dockerkit", &cfg, config.WithConfigFile(path))
package config
