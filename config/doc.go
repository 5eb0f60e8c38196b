// Package config handles loading and parsing of configuration from YAML files,
// environment variables and command-line flags. It defines the control-plane
// listener, the tap bind host, the optional TLS key pair for https taps, and
// the taps created at startup.
package config
