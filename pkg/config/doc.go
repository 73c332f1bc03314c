// Package config loads the YAML settings file and applies defaults.
package config
