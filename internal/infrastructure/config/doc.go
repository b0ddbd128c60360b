// Package config loads the access core's YAML configuration.
//
// Values are layered: built-in defaults, then the file, then ACCESSCORE_*
// environment variables. Put broker passwords, the API key and tokens in
// the environment rather than the file.
//
//	cfg, err := config.Load("configs/config.yaml")
package config
