package aggregator

import (
	"Go2NetAccounting/internal/model"
)

// counter accumulates bytes and packets for one address in one role.
type counter struct {
	bytes   uint64
	packets uint64
}

// Aggregate folds a cycle's flow records into one counter set per address.
// Every source address is credited with sent traffic and every destination address
// with received traffic; a role an address never appears in stays at zero.
func Aggregate(records []model.FlowRecord) model.Traffic {
	sent := make(map[string]*counter)
	received := make(map[string]*counter)

	for _, r := range records {
		add(sent, r.SourceAddress, r)
		add(received, r.DestinationAddress, r)
	}

	traffic := make(model.Traffic, len(sent)+len(received))
	for addr, c := range sent {
		tc := traffic[addr]
		tc.BytesSent = c.bytes
		tc.PacketsSent = c.packets
		traffic[addr] = tc
	}
	for addr, c := range received {
		tc := traffic[addr]
		tc.BytesReceived = c.bytes
		tc.PacketsReceived = c.packets
		traffic[addr] = tc
	}

	return traffic
}

func add(acc map[string]*counter, addr string, r model.FlowRecord) {
	c, ok := acc[addr]
	if !ok {
		c = &counter{}
		acc[addr] = c
	}
	c.bytes += r.ByteCount
	c.packets += r.PacketCount
}
