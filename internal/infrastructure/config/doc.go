// Package config handles loading and validating ndb configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The file is optional. LoadDefault reads NDB_CONFIG or ndb.yaml only when
// present; Load fails if the named file is missing.
//
// Security Considerations:
//   - Secrets (MQTT password, InfluxDB token, Web API password) should be set
//     via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.LoadDefault()
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Database.Path)
package config
