package mqtt

import "fmt"

// Appliance topic hierarchy:
//
//	{product_type}/{serial}/status/current   appliance → client
//	{product_type}/{serial}/command          client → appliance
//
// The product type is the prefix of the advertised mDNS instance name.

// StatusTopic returns the topic an appliance publishes its state on.
//
// Example: 438/AB1-EU-KAA0001A/status/current
func StatusTopic(prefix, serial string) string {
	return fmt.Sprintf("%s/%s/status/current", prefix, serial)
}

// CommandTopic returns the topic an appliance accepts commands on.
//
// Example: 438/AB1-EU-KAA0001A/command
func CommandTopic(prefix, serial string) string {
	return fmt.Sprintf("%s/%s/command", prefix, serial)
}
