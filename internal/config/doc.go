// Package config provides centralized configuration for the vnflow research
// engine. Configuration is layered: compiled-in defaults, an optional YAML
// file, then VNFLOW_* environment variables. Analysis parameters are
// validated at load time so ConfigurationError surfaces at startup, not in
// the middle of a pipeline run.
package config
