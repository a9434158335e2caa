// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ConfigurationFileDirectory string
)

// LoadConfiguration merges an optional config file into viper and
// enables environment variable overrides. With required set, a missing
// or unreadable file is fatal.
func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	for _, dir := range []string{
		ResolvePath(ConfigurationFileDirectory),
		".",
		"$HOME/.berth",
		"/usr/local/etc/berth/",
		"/etc/berth/",
	} {
		viper.AddConfigPath(dir)
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.MergeInConfig(); err != nil {
		event := log.Info()
		if required {
			event = log.Fatal()
		}
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
			event.Msgf("Config file not found: %s", configFileName)
		} else {
			event.Err(err).Msgf("Failed to load config file: %s", configFileName)
		}
		return false
	}
	log.Info().Msgf("Loaded config file: %s", viper.ConfigFileUsed())

	return true
}
