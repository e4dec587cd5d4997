// Package serde holds the key/value codecs handed to consumers and producers.
// A Serializer turns a typed value into broker bytes; a Deserializer does the
// reverse. The topic is passed through so codecs that key off topic names
// (schema registries and the like) can be layered on the same shape.
package serde

import (
	"encoding/json"

	"google.golang.org/protobuf/proto"
)

type Serializer[T any] func(topic string, v T) ([]byte, error)

type Deserializer[T any] func(topic string, data []byte) (T, error)

func Bytes() (Serializer[[]byte], Deserializer[[]byte]) {
	ser := func(_ string, v []byte) ([]byte, error) { return v, nil }
	de := func(_ string, data []byte) ([]byte, error) { return data, nil }
	return ser, de
}

func String() (Serializer[string], Deserializer[string]) {
	ser := func(_ string, v string) ([]byte, error) { return []byte(v), nil }
	de := func(_ string, data []byte) (string, error) { return string(data), nil }
	return ser, de
}

func JSON[T any]() (Serializer[T], Deserializer[T]) {
	ser := func(_ string, v T) ([]byte, error) { return json.Marshal(v) }
	de := func(_ string, data []byte) (T, error) {
		var v T
		err := json.Unmarshal(data, &v)
		return v, err
	}
	return ser, de
}

// Proto builds a codec pair for a generated message type. newT allocates a
// fresh message for each decode (e.g. func() *pb.Order { return &pb.Order{} }).
func Proto[T proto.Message](newT func() T) (Serializer[T], Deserializer[T]) {
	ser := func(_ string, v T) ([]byte, error) { return proto.Marshal(v) }
	de := func(_ string, data []byte) (T, error) {
		v := newT()
		err := proto.Unmarshal(data, v)
		return v, err
	}
	return ser, de
}
