// Package logging configures log/slog for dysonlink.
//
// Every entry carries service and version attributes. The format is JSON
// unless logging.format is "text". Output goes to stdout or stderr.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Attributes whose key contains password, token, credential or secret are
// written as [REDACTED], so cloud passwords and appliance credentials never
// reach the log even when passed by mistake.
//
//	log := logging.New(cfg.Logging, version)
//	log.ForDevice(serial).Info("connected", "host", host)
package logging
