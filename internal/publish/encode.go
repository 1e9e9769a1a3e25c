package publish

import (
	"Go2NetAccounting/internal/model"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ContentType of every published cycle event.
const ContentType = "application/x-protobuf"

// Encode serializes a batch as a google.protobuf.Struct. Counters are carried as
// numbers, so values above 2^53 lose precision.
func Encode(batch model.TrafficBatch) ([]byte, error) {
	points := make([]any, 0, len(batch.Points))
	for _, p := range batch.Points {
		points = append(points, map[string]any{
			"address":          p.Address,
			"type":             p.Kind(),
			"bytes_sent":       p.Counters.BytesSent,
			"bytes_received":   p.Counters.BytesReceived,
			"packets_sent":     p.Counters.PacketsSent,
			"packets_received": p.Counters.PacketsReceived,
		})
	}

	msg, err := structpb.NewStruct(map[string]any{
		"cycle_id":  batch.CycleID,
		"router":    batch.Router,
		"timestamp": batch.Timestamp.UTC().Format(time.RFC3339Nano),
		"points":    points,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build cycle event: %w", err)
	}
	return proto.Marshal(msg)
}

// Decode is the inverse of Encode.
func Decode(data []byte) (model.TrafficBatch, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return model.TrafficBatch{}, fmt.Errorf("failed to unmarshal cycle event: %w", err)
	}
	fields := msg.GetFields()

	ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"].GetStringValue())
	if err != nil {
		return model.TrafficBatch{}, fmt.Errorf("invalid cycle event timestamp: %w", err)
	}
	batch := model.TrafficBatch{
		CycleID:   fields["cycle_id"].GetStringValue(),
		Router:    fields["router"].GetStringValue(),
		Timestamp: ts,
	}

	for _, v := range fields["points"].GetListValue().GetValues() {
		pf := v.GetStructValue().GetFields()
		batch.Points = append(batch.Points, model.TrafficPoint{
			Address: pf["address"].GetStringValue(),
			Local:   pf["type"].GetStringValue() == model.KindLAN,
			Counters: model.TrafficCounters{
				BytesSent:       uint64(pf["bytes_sent"].GetNumberValue()),
				BytesReceived:   uint64(pf["bytes_received"].GetNumberValue()),
				PacketsSent:     uint64(pf["packets_sent"].GetNumberValue()),
				PacketsReceived: uint64(pf["packets_received"].GetNumberValue()),
			},
		})
	}
	return batch, nil
}
