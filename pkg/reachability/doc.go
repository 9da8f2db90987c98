// Package reachability tells apart hosts that are alive but refuse access
// from hosts that are gone, using icmp echo requests.
//
// It is consulted after a host could not be logged into:
//
//	diagnosis := reachability.New().Check(ctx, "10.0.0.1")
//	gologger.Info().Msgf("10.0.0.1: %s", diagnosis.Describe())
//
// Privilege Requirements:
// - Raw icmp sockets require root/admin privileges on most systems
// - Without them the unprivileged datagram socket is tried (Linux ping_group_range, macOS)
// - When neither can be opened the diagnosis is unknown
//
// Limitations:
// - Hosts with icmp disabled or firewalled are reported unreachable
package reachability
