// Package config loads config.yaml for dysonlink.
//
// Values are layered: defaults, then the file, then DYSONLINK_* variables
// such as DYSONLINK_CLOUD_PASSWORD or DYSONLINK_API_PORT. Keep the account
// password in the environment; appliance credentials never appear here
// because they arrive encrypted in the device manifest.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	wait := cfg.GetDiscoveryWait()
package config
