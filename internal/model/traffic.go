package model

import (
	"sort"
	"time"
)

// FlowRecord is one accounted flow between a source and destination address,
// as reported by a single line of the router's accounting feed.
type FlowRecord struct {
	SourceAddress      string
	DestinationAddress string
	ByteCount          uint64
	PacketCount        uint64
}

// TrafficCounters holds the per-address totals for a single polling cycle.
type TrafficCounters struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
}

// Traffic maps an address to its counters for one cycle.
type Traffic map[string]TrafficCounters

// Addresses returns the keys of t in lexicographic order.
func (t Traffic) Addresses() []string {
	addrs := make([]string, 0, len(t))
	for addr := range t {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

const (
	KindLAN = "LAN"
	KindWAN = "WAN"
)

// TrafficPoint is a single classified address of a cycle, ready to be stored.
type TrafficPoint struct {
	Address  string
	Local    bool
	Counters TrafficCounters
}

// Kind returns "LAN" for local addresses and "WAN" otherwise.
func (p TrafficPoint) Kind() string {
	if p.Local {
		return KindLAN
	}
	return KindWAN
}

// IsWAN returns 1 for external addresses and 0 for local ones.
func (p TrafficPoint) IsWAN() uint8 {
	if p.Local {
		return 0
	}
	return 1
}

// TrafficBatch is everything written for one cycle. All points share Timestamp.
type TrafficBatch struct {
	CycleID   string
	Router    string
	Timestamp time.Time
	Points    []TrafficPoint
}

// Totals sums the counters of every point in the batch.
func (b TrafficBatch) Totals() TrafficCounters {
	var total TrafficCounters
	for _, p := range b.Points {
		total.BytesSent += p.Counters.BytesSent
		total.BytesReceived += p.Counters.BytesReceived
		total.PacketsSent += p.Counters.PacketsSent
		total.PacketsReceived += p.Counters.PacketsReceived
	}
	return total
}
