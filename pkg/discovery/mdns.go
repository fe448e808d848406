package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/brutella/dnssd"
)

// MDNSAdapter implements the address book over multicast DNS.
type MDNSAdapter struct{}

var _ Adapter = (*MDNSAdapter)(nil)

// Announce publishes the local relay identity until the context ends. The
// port is nominal: calls are negotiated via the relay or an optical code, not
// by dialing the announced address.
func (m *MDNSAdapter) Announce(ctx context.Context, localID string) error {
	cfg := dnssd.Config{
		Name:   localID,
		Type:   ServiceType,
		Domain: Domain,
		Text:   map[string]string{"id": localID},
		Port:   1, // required by dnssd, never dialed
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("create mDNS service: %w", err)
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("create mDNS responder: %w", err)
	}
	if _, err := rp.Add(service); err != nil {
		return fmt.Errorf("add mDNS service: %w", err)
	}

	if err := rp.Respond(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mDNS respond: %w", err)
	}
	return nil
}

// Browse streams address-book snapshots as peers come and go.
func (m *MDNSAdapter) Browse(ctx context.Context) <-chan Result {
	var (
		mu      sync.Mutex
		entries = make(map[string]Peer)
		outCh   = make(chan Result, 10)
	)

	sendSnapshot := func() {
		mu.Lock()
		snapshot := make([]Peer, 0, len(entries))
		for _, p := range entries {
			snapshot = append(snapshot, p)
		}
		mu.Unlock()
		sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
		select {
		case outCh <- Result{Peers: snapshot}:
		default:
		}
	}

	addFn := func(e dnssd.BrowseEntry) {
		id := e.Text["id"]
		if id == "" {
			id = e.Name
		}
		mu.Lock()
		entries[key(e)] = Peer{ID: id, Instance: e.Name}
		mu.Unlock()
		sendSnapshot()
	}

	rmvFn := func(e dnssd.BrowseEntry) {
		mu.Lock()
		delete(entries, key(e))
		mu.Unlock()
		sendSnapshot()
	}

	go func() {
		defer close(outCh)
		if err := dnssd.LookupType(ctx, fmt.Sprintf("%s.%s.", ServiceType, Domain), addFn, rmvFn); err != nil &&
			!errors.Is(err, context.Canceled) {
			select {
			case outCh <- Result{Err: fmt.Errorf("mDNS lookup: %w", err)}:
			default:
			}
		}
	}()

	return outCh
}

func key(e dnssd.BrowseEntry) string {
	return fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain)
}
