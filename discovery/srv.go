// Package discovery implements RFC 6186 mail-service autodiscovery: given a domain, it looks up
// the _imap/_imaps SRV records to find the host and port an IMAP client should connect to,
// instead of relying on a hand-configured host. This is a supplement to §6's static port table,
// not present in the distilled spec.
package discovery

import (
	"fmt"
	"net"
	"sort"

	"github.com/miekg/dns"

	"github.com/tacheron/imapc/imaperr"
)

// Target is one resolved connection endpoint, ordered by SRV priority/weight.
type Target struct {
	Host string
	Port int
	TLS  bool // true when resolved from _imaps._tcp (implicit TLS)
}

// Lookup queries domain's _imaps._tcp and _imap._tcp SRV records via resolver (e.g.
// "1.1.1.1:53"; empty means the first nameserver in /etc/resolv.conf) and returns every target
// found, implicit-TLS targets first.
func Lookup(domain, resolver string) ([]Target, *imaperr.Error) {
	if resolver == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil || len(conf.Servers) == 0 {
			return nil, imaperr.New(imaperr.CannotConnect, "discovery.Lookup", "no DNS resolver configured", err)
		}
		resolver = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	var targets []Target
	for _, q := range []struct {
		service string
		tls     bool
	}{
		{"_imaps._tcp.", true},
		{"_imap._tcp.", false},
	} {
		recs, err := queryService(q.service+domain+".", resolver)
		if err != nil {
			return nil, imaperr.New(imaperr.CannotConnect, "discovery.Lookup", "SRV lookup failed for "+domain, err)
		}
		sort.SliceStable(recs, func(i, j int) bool {
			if recs[i].Priority != recs[j].Priority {
				return recs[i].Priority < recs[j].Priority
			}
			return recs[i].Weight > recs[j].Weight
		})
		for _, r := range recs {
			targets = append(targets, Target{Host: r.Target, Port: int(r.Port), TLS: q.tls})
		}
	}
	if len(targets) == 0 {
		return nil, imaperr.New(imaperr.CannotConnect, "discovery.Lookup", "no IMAP SRV records found for "+domain, nil)
	}
	return targets, nil
}

func queryService(fqdn, resolver string) ([]*dns.SRV, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, dns.TypeSRV)
	msg.RecursionDesired = true

	client := new(dns.Client)
	resp, _, err := client.Exchange(msg, resolver)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup for %s failed: %w", fqdn, err)
	}
	if resp.Rcode == dns.RcodeNameError {
		return nil, nil // no such service, not an error: the other service may still exist
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("SRV lookup for %s: server returned %s", fqdn, dns.RcodeToString[resp.Rcode])
	}
	var srvs []*dns.SRV
	for _, rr := range resp.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			srvs = append(srvs, srv)
		}
	}
	return srvs, nil
}
