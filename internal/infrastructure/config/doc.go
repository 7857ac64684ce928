// Package config handles loading and validating envsensor configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (ENVSENSOR_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Certificate and key paths point at files readable only by the service user
//   - Tokens (InfluxDB) should be set via environment variables
//   - Websocket mode never stores AWS credentials here; they come from the
//     default credential chain at connect time
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Endpoint)
package config
