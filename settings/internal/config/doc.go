// Package config loads the settings mock configuration from the `settings:`
// section of a YAML file: listen address, strict_set, log_level and the
// optional MQTT mirror. Load("") returns the defaults.
package config
