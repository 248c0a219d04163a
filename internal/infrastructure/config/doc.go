// Package config loads and validates the classroom controller configuration.
//
// Values are layered: built-in defaults, then the YAML file, then CLASSROOM_*
// environment variables. A .env file in the working directory is read into
// the environment before anything else, which keeps secrets such as the JWT
// key and broker password out of the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topics.Telemetry)
package config
