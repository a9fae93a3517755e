// Package discovery finds appliances on the local network and resolves
// them to MQTT broker addresses.
//
// # Architecture
//
//	Browser (zeroconf) ──Put──▶ Registry ◀──Lookup── Resolver ──▶ Network
//
// The Browser runs in the background for the life of the process and
// writes one ServiceRecord per advertised instance into a caller-owned
// Registry, keyed by the serial suffix of the instance name. The Resolver
// reads the registry on demand; it never blocks waiting for discovery.
//
// Advertised instance names have the form "<prefix>_<serial>", where the
// prefix is the product type used as the first MQTT topic segment.
//
// # Usage
//
//	registry := discovery.NewRegistry()
//	browser := discovery.NewBrowser(discovery.BrowserConfig{}, registry)
//	if err := browser.Start(ctx); err != nil {
//	    return err
//	}
//	defer browser.Stop()
//
//	resolver := discovery.NewResolver(registry)
//	network, err := resolver.Resolve(ctx, "AB1-EU-KAA0001A")
package discovery
