// Package discovery finds and announces OpenBCI streaming servers over mDNS.
//
// A server started with advertising enabled registers itself as an
// "_openbci._tcp" service whose TXT record carries the server version and
// the board endpoint. Clients such as the monitor browse for that service
// type instead of asking the user for an address.
//
// # Discovery Process
//
//  1. Broadcasts mDNS queries for "_openbci._tcp" on the local network
//  2. Collects answers until the timeout, dropping entries with no address
//  3. Returns one Service per instance name
//
// # Usage Example
//
//	services, err := discovery.Scan(3 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, svc := range services {
//	    fmt.Println(svc.Instance, svc.WebSocketURL())
//	}
//
// # Network Requirements
//
// mDNS uses UDP port 5353 on multicast 224.0.0.251 (IPv4) and ff02::fb
// (IPv6). Firewalls must allow this traffic in both directions.
package discovery
