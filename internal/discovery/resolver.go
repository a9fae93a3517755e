package discovery

import (
	"context"
	"fmt"
	"net"
)

// HostLookup resolves a host name to addresses. net.Resolver.LookupHost satisfies it.
type HostLookup func(ctx context.Context, host string) ([]string, error)

// Resolver turns a device serial into a Network using the records a
// Browser has collected. It never waits for discovery and never retries:
// an unknown serial fails immediately with ErrServiceNotFound.
//
// Resolver does not cache. Callers that need resolve-once semantics
// memoise the result themselves.
type Resolver struct {
	registry *Registry
	lookup   HostLookup
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHostLookup replaces the host name lookup (default net.DefaultResolver.LookupHost).
func WithHostLookup(lookup HostLookup) ResolverOption {
	return func(r *Resolver) {
		r.lookup = lookup
	}
}

// NewResolver creates a resolver reading from registry.
func NewResolver(registry *Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry: registry,
		lookup:   net.DefaultResolver.LookupHost,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the network location for serial.
//
// The advertised host is resolved with the configured lookup. If that
// fails, the first address carried in the mDNS answer (IPv4 first) is
// used instead. The topic prefix is taken from the advertised name.
//
// Returns:
//   - Network: populated on success
//   - error: ErrServiceNotFound, ErrInvalidServiceName or ErrResolveFailed
func (r *Resolver) Resolve(ctx context.Context, serial string) (Network, error) {
	rec, ok := r.registry.Lookup(serial)
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrServiceNotFound, serial)
	}

	prefix, _, err := SplitServiceName(rec.Name)
	if err != nil {
		return Network{}, err
	}

	address, err := r.resolveAddress(ctx, rec)
	if err != nil {
		return Network{}, err
	}

	return Network{
		ServiceName: rec.Name,
		TopicPrefix: prefix,
		Host:        rec.Host,
		Port:        rec.Port,
		Address:     address,
	}, nil
}

// resolveAddress picks the address to dial for rec.
func (r *Resolver) resolveAddress(ctx context.Context, rec ServiceRecord) (string, error) {
	var lookupErr error
	if rec.Host != "" {
		addrs, err := r.lookup(ctx, rec.Host)
		if err == nil && len(addrs) > 0 {
			return addrs[0], nil
		}
		lookupErr = err
	}

	if len(rec.IPv4) > 0 {
		return rec.IPv4[0], nil
	}
	if len(rec.IPv6) > 0 {
		return rec.IPv6[0], nil
	}

	if lookupErr != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrResolveFailed, rec.Host, lookupErr)
	}
	return "", fmt.Errorf("%w: %s: no addresses", ErrResolveFailed, rec.Host)
}
