// Package config loads, normalizes, and validates callsight configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads .env files, and honours environment
// fallbacks such as HUGGING_FACE_TOKEN. Detector rules may additionally come
// from a YAML rules file.
//
// A loaded Config is treated as immutable: the server and batch runner share
// one instance across concurrent sessions.
package config
