// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

// Package env resolves the deployment environment once at startup.
package env

import "github.com/spf13/viper"

// Deployment environments recognized in configuration.
const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
)

// Env is the deployment environment, read from the ENV key. It
// defaults to local so a bare checkout behaves like a dev box.
var Env = Local

func init() {
	if v := viper.GetString("ENV"); v != "" {
		Env = v
	}
}

func IsLocal() bool {
	return Env == Local
}

func IsProduction() bool {
	return Env == Production
}

func IsTesting() bool {
	return Env == Testing
}
