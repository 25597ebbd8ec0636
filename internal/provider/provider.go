package provider

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/libdns/libdns"
)

const TypeAAAA = "AAAA"

type Provider interface {
	ListRecords(ctx context.Context) ([]Record, error)
	CreateRecord(ctx context.Context, record Record) (Record, error)
	UpdateRecord(ctx context.Context, record Record) (Record, error)
	DeleteRecord(ctx context.Context, record Record) error
}

type Record struct {
	ID   string
	Name string
	Type string
	Data string
	Zone string
	TTL  time.Duration
}

// Matches reports whether the record is of type typ and named host.
// Names compare case-insensitively and ignore a trailing root dot.
func (r Record) Matches(host, typ string) bool {
	return r.Type == typ && NormalizeName(r.Name) == NormalizeName(host)
}

func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}

// ParseAddress validates content as the data of an AAAA record for name.
func ParseAddress(name, content string) (netip.Addr, error) {
	rr := libdns.RR{
		Name: name,
		Type: TypeAAAA,
		Data: strings.TrimSpace(content),
	}
	rec, err := rr.Parse()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("fail parse aaaa record data %q, err=%w", content, err)
	}
	addr, err := netip.ParseAddr(rec.RR().Data)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("fail parse ip addr %q, err=%w", content, err)
	}
	if !addr.Is6() || addr.Is4In6() {
		return netip.Addr{}, fmt.Errorf("not an ipv6 address: %s", content)
	}
	if addr.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("zoned ipv6 address not allowed in dns: %s", content)
	}
	return addr, nil
}

// SameContent compares record contents. Two parseable addresses compare by
// value, anything else compares as text.
func SameContent(a, b string) bool {
	if a == b {
		return true
	}
	aa, errA := netip.ParseAddr(strings.TrimSpace(a))
	ab, errB := netip.ParseAddr(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return false
	}
	return aa == ab
}
