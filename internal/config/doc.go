// Package config loads the application configuration.
//
// # Configuration Sources
//
// Values are applied in order, each overriding the previous one:
//
//	1. Defaults (Default)
//	2. A YAML file: NEBULA_CONFIG_FILE, or config.yaml / configs/config.yaml
//	3. Environment variables prefixed NEBULA_
//
// # Environment Variables
//
//	NEBULA_AGENDA_FILE_PATH=/home/me/agenda.enc
//	NEBULA_AGENDA_KEY_FILE=/home/me/agenda.key
//	NEBULA_AGENDA_REFRESH_INTERVAL=5m
//	NEBULA_SERVER_PORT=8080
//	NEBULA_LOGGING_LEVEL=debug
//	NEBULA_TELEMETRY_ENABLED=true
//
// # Validation
//
// Load validates struct tags with go-playground/validator and then applies
// checks the tags cannot express. Agenda paths are only checked for presence;
// whether the files are readable is reported by each pipeline run.
package config
