package grid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"drivecal/internal/model"
)

// DefaultResourcePrefix is the seat family used by the school's ERP
// ("dobong-1" .. "dobong-9").
const DefaultResourcePrefix = "dobong"

const (
	minSeat = 1
	maxSeat = 9
)

// Resolver extracts a seat/resource key from a raw event.
type Resolver struct {
	prefix string
	exact  *regexp.Regexp // whole-string match for explicit hints
	scan   *regexp.Regexp // substring match for title / class names
}

// NewResolver builds a Resolver for the given resource family prefix
// (case-insensitive). An empty prefix means DefaultResourcePrefix.
func NewResolver(prefix string) *Resolver {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultResourcePrefix
	}
	q := regexp.QuoteMeta(prefix)
	return &Resolver{
		prefix: prefix,
		exact:  regexp.MustCompile(`(?i)^` + q + `-(\d+)$`),
		scan:   regexp.MustCompile(`(?i)` + q + `-(\d+)`),
	}
}

// Prefix returns the lower-cased resource family prefix.
func (r *Resolver) Prefix() string {
	return r.prefix
}

// Seat returns the canonical key for seat n.
func (r *Resolver) Seat(n int) string {
	return fmt.Sprintf("%s-%d", r.prefix, n)
}

// Resolve returns the event's resource key and true, or ("", false) when the
// event carries no hint at all. The caller decides the fallback column.
//
// Explicit ResourceID wins over the title, which wins over class names.
// Seat numbers 1-9 are canonicalized; anything else is kept so unknown
// resource kinds are not lost.
func (r *Resolver) Resolve(ev model.RawEvent) (string, bool) {
	if hint := strings.TrimSpace(ev.ResourceID); hint != "" {
		if m := r.exact.FindStringSubmatch(hint); m != nil {
			if n, ok := seatNumber(m[1]); ok {
				return r.Seat(n), true
			}
		}
		return ev.ResourceID, true
	}

	if id, ok := r.scanText(ev.Title); ok {
		return id, true
	}

	for _, cls := range ev.ClassName {
		if id, ok := r.scanText(cls); ok {
			return id, true
		}
	}

	return "", false
}

func (r *Resolver) scanText(s string) (string, bool) {
	m := r.scan.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	if n, ok := seatNumber(m[1]); ok {
		return r.Seat(n), true
	}
	return strings.ToLower(m[0]), true
}

func seatNumber(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil || n < minSeat || n > maxSeat {
		return 0, false
	}
	return n, true
}
