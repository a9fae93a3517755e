package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// Logger is the logging interface used by the Browser.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// BrowserConfig configures mDNS browsing.
type BrowserConfig struct {
	// ServiceType is the DNS-SD service type. Default: DefaultServiceType.
	ServiceType string

	// Domain is the browse domain. Default: DefaultDomain.
	Domain string

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string
}

// Browser continuously browses for appliances and writes what it finds
// into a Registry.
type Browser struct {
	cfg      BrowserConfig
	registry *Registry
	logger   Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBrowser creates a browser that populates registry.
func NewBrowser(cfg BrowserConfig, registry *Registry) *Browser {
	if cfg.ServiceType == "" {
		cfg.ServiceType = DefaultServiceType
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	return &Browser{
		cfg:      cfg,
		registry: registry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the browser.
func (b *Browser) SetLogger(logger Logger) {
	b.logger = logger
}

// Start begins browsing in the background. It returns immediately; results
// arrive in the registry as they are received. Browsing stops when ctx is
// cancelled or Stop is called.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return ErrBrowserRunning
	}

	ctx, b.cancel = context.WithCancel(ctx)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	opts := b.browserOptions()

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.consume(ctx, entries, removed)
	}()
	go func() {
		defer b.wg.Done()
		if err := zeroconf.Browse(ctx, b.cfg.ServiceType, b.cfg.Domain, entries, removed, opts...); err != nil {
			b.logger.Warn("mDNS browse ended with error", "service", b.cfg.ServiceType, "error", err)
		}
	}()

	b.logger.Info("mDNS browse started", "service", b.cfg.ServiceType, "domain", b.cfg.Domain)
	return nil
}

// Stop ends browsing and waits for background goroutines to exit.
// Records already in the registry are kept.
func (b *Browser) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	b.wg.Wait()
}

// consume moves zeroconf results into the registry until ctx ends.
func (b *Browser) consume(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			b.handleEntry(recordFromEntry(entry))

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			// Keep the record; address resolution is cached per device anyway.
			b.logger.Debug("mDNS service withdrawn", "name", entry.Instance)

		case <-ctx.Done():
			return
		}
	}
}

// handleEntry stores one discovered record.
func (b *Browser) handleEntry(rec ServiceRecord) {
	if err := b.registry.Put(rec); err != nil {
		b.logger.Debug("ignoring mDNS service", "name", rec.Name, "error", err)
		return
	}
	b.logger.Info("appliance discovered",
		"name", rec.Name,
		"serial", rec.Serial(),
		"host", rec.Host,
		"port", rec.Port,
	)
}

// browserOptions returns zeroconf client options based on config.
func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if b.cfg.Interface != "" {
		iface, err := net.InterfaceByName(b.cfg.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.logger.Warn("discovery interface not found, browsing all interfaces",
				"interface", b.cfg.Interface, "error", err)
		}
	}

	return opts
}

// recordFromEntry converts a zeroconf entry to a ServiceRecord.
func recordFromEntry(entry *zeroconf.ServiceEntry) ServiceRecord {
	rec := ServiceRecord{
		Name: entry.Instance,
		Host: entry.HostName,
		Port: entry.Port,
	}
	for _, ip := range entry.AddrIPv4 {
		rec.IPv4 = append(rec.IPv4, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		rec.IPv6 = append(rec.IPv6, ip.String())
	}
	return rec
}
