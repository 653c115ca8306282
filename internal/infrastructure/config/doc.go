// Package config handles loading and validating Clinic Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The route-class prefix tables consumed by the gateway live here as
// plain data so operators can reclassify paths without recompiling.
//
// Security Considerations:
//   - Sensitive values (signing secrets) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Session secrets must be changed from defaults before production use
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Routes.DefaultLandingPath)
package config
