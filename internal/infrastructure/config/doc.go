// Package config handles loading and validating CoPilot core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (COPILOT_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The upstream session cookie should be set via environment variable,
//     not stored in the config file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Upstream.BaseURL)
package config
