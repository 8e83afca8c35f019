package storage

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodePayload serializes extracted cache data as a protobuf Struct.
func EncodePayload(data map[string]any) ([]byte, error) {
	msg, err := structpb.NewStruct(data)
	if err != nil {
		return nil, fmt.Errorf("encode cache payload: %w", err)
	}
	payload, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal cache payload: %w", err)
	}
	return payload, nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(payload []byte) (map[string]any, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal cache payload: %w", err)
	}
	return msg.AsMap(), nil
}
