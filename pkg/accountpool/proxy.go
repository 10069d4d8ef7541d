package accountpool

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// proxyRecord is the on-disk shape of one entry in proxies.json.
type proxyRecord struct {
	HTTP     string `json:"http"`
	HTTPS    string `json:"https"`
	Tag      string `json:"tag,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// ProxyRotator round-robins over an in-memory proxy list loaded from
// a JSON file. Proxy health (a fail counter that decays on success)
// is tracked in memory only; it does not currently influence
// selection, reserved for a future weighting policy.
type ProxyRotator struct {
	mu      sync.Mutex
	proxies []Proxy
	next    int
	fails   map[string]int
}

// NewProxyRotator returns an empty rotator. Load it with LoadFile
// before calling Next.
func NewProxyRotator() *ProxyRotator {
	return &ProxyRotator{fails: make(map[string]int)}
}

// LoadFile replaces the rotator's proxy list from a proxies.json file.
// A missing file is treated as an empty list: Next then always
// returns nil and leases are issued without a proxy.
func (r *ProxyRotator) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.proxies = nil
			r.next = 0
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var records []proxyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	proxies := make([]Proxy, 0, len(records))
	for i, rec := range records {
		proxies = append(proxies, Proxy{
			ProxyID:  fmt.Sprintf("proxy-%d", i),
			HTTP:     rec.HTTP,
			HTTPS:    rec.HTTPS,
			Tag:      rec.Tag,
			Provider: rec.Provider,
		})
	}

	r.mu.Lock()
	r.proxies = proxies
	r.next = 0
	r.mu.Unlock()
	return nil
}

// Next returns the next proxy in rotation, or nil if the list is
// empty.
func (r *ProxyRotator) Next() *Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.proxies) == 0 {
		return nil
	}
	p := r.proxies[r.next%len(r.proxies)]
	r.next++
	return &p
}

// RecordSuccess decays a proxy's failure counter by one, clamped at
// zero.
func (r *ProxyRotator) RecordSuccess(proxyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails[proxyID] > 0 {
		r.fails[proxyID]--
	}
}

// RecordFailure increments a proxy's failure counter.
func (r *ProxyRotator) RecordFailure(proxyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails[proxyID]++
}

// FailCount reports a proxy's current in-memory failure counter.
func (r *ProxyRotator) FailCount(proxyID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fails[proxyID]
}
