// Package config loads broker topologies from YAML files and applies them through a
// routing.Configurator.
package config
