// Package logging is the bridge's structured logger, a thin layer over
// log/slog shared by the bridge, MQTT client, API and storage.
//
// Entries carry service and version fields. Values of password, token,
// secret and similar keys are replaced with "[redacted]".
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr or a file path
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("telegram batch processed", "device", "boiler", "telegrams", 12)
package logging
