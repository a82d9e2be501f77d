package adminapi

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const errMsgUnauthorized = "not authorized to access the requested resource"

var defaultBlockedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintln(w, errMsgUnauthorized)
})

// IPFilter restricts access to the IPs and CIDR ranges named by an access
// control list. An empty list disables filtering entirely.
type IPFilter struct {
	allowedIPs   map[netip.Addr]struct{}
	allowedCIDRs []*net.IPNet
}

// NewIPFilter parses a comma-separated list of IPs and/or CIDR ranges.
func NewIPFilter(acl string) (*IPFilter, error) {
	allowedIPs := make(map[netip.Addr]struct{})
	var allowedCIDRs []*net.IPNet

	if trimmed := strings.Trim(acl, ","); trimmed != "" {
		for _, entry := range strings.Split(trimmed, ",") {
			entry = strings.TrimSpace(entry)
			if _, cidr, err := net.ParseCIDR(entry); err == nil {
				allowedCIDRs = append(allowedCIDRs, cidr)
				continue
			}
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("adminapi: malformed IP or CIDR address: %v", entry)
			}
			allowedIPs[addr] = struct{}{}
		}
	}

	return &IPFilter{allowedIPs: allowedIPs, allowedCIDRs: allowedCIDRs}, nil
}

// Wrap restricts next to the configured access control list.
func (f *IPFilter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(f.allowedIPs) == 0 && len(f.allowedCIDRs) == 0 {
			next(w, r)
			return
		}

		ip, err := originalIP(r)
		if err != nil || !f.isAllowed(ip) {
			defaultBlockedHandler.ServeHTTP(w, r)
			return
		}

		next(w, r)
	}
}

func (f *IPFilter) isAllowed(ip netip.Addr) bool {
	if !ip.IsValid() {
		return false
	}
	if _, ok := f.allowedIPs[ip]; ok {
		return true
	}
	for _, cidr := range f.allowedCIDRs {
		if cidr.Contains(ip.AsSlice()) {
			return true
		}
	}
	return false
}

// originalIP recovers the client's IP, preferring X-Forwarded-For and
// X-Real-Ip over RemoteAddr.
func originalIP(req *http.Request) (netip.Addr, error) {
	addr := ""
	if parts := strings.Split(req.RemoteAddr, ":"); len(parts) == 2 {
		addr = parts[0]
	}

	if xff := strings.Trim(req.Header.Get("X-Forwarded-For"), ","); xff != "" {
		addrs := strings.Split(xff, ",")
		last := strings.TrimSpace(addrs[len(addrs)-1])
		return netip.ParseAddr(last)
	}

	if xri := req.Header.Get("X-Real-Ip"); xri != "" {
		return netip.ParseAddr(xri)
	}

	return netip.ParseAddr(addr)
}
