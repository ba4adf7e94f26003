// Package config loads the service configuration (configs/config.yaml).
//
// Values come from built-in defaults, then the YAML file, then
// ISM7BRIDGE_* environment variables; keep secrets such as the JWT secret
// and broker password in the environment. Unknown YAML keys are rejected.
// Config.String redacts secrets so the loaded configuration can be logged.
//
// Devices, the parameter catalog and discovery settings are a separate
// file, named by ism7.config_file and loaded by the ism7 package.
//
//	cfg, err := config.Load("configs/config.yaml")
package config
