// Package discovery finds federation peer candidates.
//
// Candidates come from up to four ranked sources: a static bootstrap
// list, DNS resolution, LAN gossip membership and a UDP local
// broadcast probe. The Service runs all configured sources on a
// periodic cycle, deduplicates records by node ID keeping the
// strongest source, caps the known set with weakest-oldest eviction,
// and feeds surviving records to the coordinator.
//
//   - source.go: the Source interface
//   - bootstrap.go, dns.go, memberlist.go, broadcast.go: built-in sources
//   - service.go: the discovery cycle and record table
//
// Discovery only emits records. It never contacts the consensus group
// or mutates membership itself.
package discovery
