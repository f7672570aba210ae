package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"golang.org/x/sync/errgroup"
)

// DefaultServiceTypes are browsed when a Scanner is given none.
var DefaultServiceTypes = []string{"_circuitpython._tcp", "_http._tcp"}

const (
	defaultDomain       = "local."
	defaultScanDuration = 3 * time.Second
	minScanDuration     = 100 * time.Millisecond
)

// Service is one resolved mDNS announcement.
type Service struct {
	IP   string
	Port int
	Name string
}

// Host returns the address in host:port form.
func (s Service) Host() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// browseFunc matches zeroconf.Resolver.Browse.
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	Duration     time.Duration
	ServiceTypes []string
	Domain       string
}

// Scanner browses the local network for CircuitPython boards.
type Scanner struct {
	cfg    ScannerConfig
	browse browseFunc
	logger Logger
}

// NewScanner creates a scanner backed by a zeroconf resolver.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Duration < minScanDuration {
		if cfg.Duration <= 0 {
			cfg.Duration = defaultScanDuration
		} else {
			cfg.Duration = minScanDuration
		}
	}
	if len(cfg.ServiceTypes) == 0 {
		cfg.ServiceTypes = DefaultServiceTypes
	}
	if cfg.Domain == "" {
		cfg.Domain = defaultDomain
	}
	return &Scanner{cfg: cfg, browse: zeroconfBrowse, logger: noopLogger{}}
}

// SetLogger sets the logger for the scanner.
func (s *Scanner) SetLogger(logger Logger) {
	s.logger = logger
}

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	return resolver.Browse(ctx, service, domain, entries)
}

// Scan browses every configured service type concurrently for the
// configured duration. Results are deduplicated on (ip, port, name) and
// ordered by service type, then arrival.
func (s *Scanner) Scan(parent context.Context) ([]Service, error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.Duration)
	defer cancel()

	found := make([][]Service, len(s.cfg.ServiceTypes))
	g, gctx := errgroup.WithContext(ctx)

	for i, svcType := range s.cfg.ServiceTypes {
		g.Go(func() error {
			entries := make(chan *zeroconf.ServiceEntry)
			if err := s.browse(gctx, svcType, s.cfg.Domain, entries); err != nil {
				return fmt.Errorf("browsing %s: %w", svcType, err)
			}
			found[i] = collect(gctx, entries)
			s.logger.Debug("mdns browse finished", "service", svcType, "found", len(found[i]))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}

	seen := make(map[Service]struct{})
	results := []Service{}
	for _, list := range found {
		for _, svc := range list {
			if _, dup := seen[svc]; dup {
				continue
			}
			seen[svc] = struct{}{}
			results = append(results, svc)
		}
	}
	return results, nil
}

// collect drains entries until the channel closes or ctx ends.
func collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) []Service {
	var out []Service
	for {
		select {
		case <-ctx.Done():
			return out
		case e, ok := <-entries:
			if !ok {
				return out
			}
			out = append(out, servicesFromEntry(e)...)
		}
	}
}

func servicesFromEntry(e *zeroconf.ServiceEntry) []Service {
	if e == nil {
		return nil
	}
	name := e.ServiceInstanceName()
	var out []Service
	for _, ip := range e.AddrIPv4 {
		out = append(out, Service{IP: ip.String(), Port: e.Port, Name: name})
	}
	for _, ip := range e.AddrIPv6 {
		out = append(out, Service{IP: ip.String(), Port: e.Port, Name: name})
	}
	return out
}
