// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dmxstream carries dmx engine events over WebSocket.
//
// Binary messages are CBOR arrays [msg_type, payload_map] with integer map
// keys. Text messages are JSON objects for browsers and scripts.
package dmxstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

// Message types
const (
	MsgSyncLost  uint8 = 0x01
	MsgSyncFound uint8 = 0x02
	MsgFrame     uint8 = 0x03
	MsgMonitored uint8 = 0x04
)

// Encoding selects the wire format of a stream
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingCBOR
)

// ParseEncoding maps a query value to an Encoding. Empty means JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "json":
		return EncodingJSON, nil
	case "cbor":
		return EncodingCBOR, nil
	default:
		return 0, fmt.Errorf("unknown stream encoding %q", s)
	}
}

func (e Encoding) String() string {
	if e == EncodingCBOR {
		return "cbor"
	}
	return "json"
}

type wirePayload struct {
	Time       int64       `cbor:"0,keyasint,omitempty"`
	Seq        uint64      `cbor:"1,keyasint,omitempty"`
	StartCode  *uint8      `cbor:"2,keyasint,omitempty"`
	Slots      []byte      `cbor:"3,keyasint,omitempty"`
	Monitored  map[int]int `cbor:"4,keyasint,omitempty"`
	Chunks     int         `cbor:"5,keyasint,omitempty"`
	Discarded  int         `cbor:"6,keyasint,omitempty"`
	DurationUs int64       `cbor:"7,keyasint,omitempty"`
}

type wireMessage struct {
	_       struct{} `cbor:",toarray"`
	Type    uint8
	Payload *wirePayload
}

func msgType(k dmx.EventKind) (uint8, error) {
	switch k {
	case dmx.EventSyncLost:
		return MsgSyncLost, nil
	case dmx.EventSyncFound:
		return MsgSyncFound, nil
	case dmx.EventFrame:
		return MsgFrame, nil
	case dmx.EventMonitored:
		return MsgMonitored, nil
	default:
		return 0, fmt.Errorf("unknown event kind %d", k)
	}
}

func eventKind(t uint8) (dmx.EventKind, error) {
	switch t {
	case MsgSyncLost:
		return dmx.EventSyncLost, nil
	case MsgSyncFound:
		return dmx.EventSyncFound, nil
	case MsgFrame:
		return dmx.EventFrame, nil
	case MsgMonitored:
		return dmx.EventMonitored, nil
	default:
		return 0, fmt.Errorf("unknown message type 0x%02X", t)
	}
}

// EncodeCBOR encodes an event as [msg_type, payload_map]
func EncodeCBOR(e dmx.Event) ([]byte, error) {
	t, err := msgType(e.Kind)
	if err != nil {
		return nil, err
	}

	p := &wirePayload{Time: e.Time.UnixNano()}
	switch e.Kind {
	case dmx.EventSyncFound:
		if e.Resync != nil {
			p.Chunks = e.Resync.Chunks
			p.Discarded = e.Resync.Discarded
			p.DurationUs = e.Resync.Duration.Microseconds()
		}
	case dmx.EventFrame:
		if e.Frame != nil {
			sc := e.Frame.StartCode()
			p.Seq = e.Frame.Seq()
			p.StartCode = &sc
			p.Slots = e.Frame.Slots()
		}
	case dmx.EventMonitored:
		if e.Frame != nil {
			p.Seq = e.Frame.Seq()
		}
		p.Monitored = e.Monitored
	}

	return cbor.Marshal(wireMessage{Type: t, Payload: p})
}

// DecodeCBOR parses a message produced by EncodeCBOR. Monitored events carry
// the sequence number of their frame but not its slots.
func DecodeCBOR(data []byte) (dmx.Event, error) {
	if len(data) == 0 {
		return dmx.Event{}, fmt.Errorf("empty CBOR payload")
	}

	var msg wireMessage
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return dmx.Event{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	kind, err := eventKind(msg.Type)
	if err != nil {
		return dmx.Event{}, err
	}

	p := msg.Payload
	if p == nil {
		p = &wirePayload{}
	}
	e := dmx.Event{Kind: kind, Time: time.Unix(0, p.Time)}

	switch kind {
	case dmx.EventSyncFound:
		e.Resync = &dmx.ResyncInfo{
			Chunks:    p.Chunks,
			Discarded: p.Discarded,
			Duration:  time.Duration(p.DurationUs) * time.Microsecond,
		}
	case dmx.EventFrame:
		if p.StartCode == nil {
			return dmx.Event{}, fmt.Errorf("frame message without start code")
		}
		if len(p.Slots) > dmx.SlotCount {
			return dmx.Event{}, fmt.Errorf("frame message with %d slots", len(p.Slots))
		}
		e.Frame = dmx.RestoreFrame(p.Seq, *p.StartCode, p.Slots, e.Time)
	case dmx.EventMonitored:
		e.Frame = dmx.RestoreFrame(p.Seq, 0, nil, e.Time)
		e.Monitored = p.Monitored
		if e.Monitored == nil {
			e.Monitored = map[int]int{}
		}
	}

	return e, nil
}

// JSONMessage is the text form of an event
type JSONMessage struct {
	Kind       string         `json:"kind"`
	Time       time.Time      `json:"time"`
	Seq        uint64         `json:"seq,omitempty"`
	StartCode  *uint8         `json:"start_code,omitempty"`
	Slots      []int          `json:"slots,omitempty"`
	Monitored  map[string]int `json:"monitored,omitempty"`
	Chunks     int            `json:"chunks,omitempty"`
	Discarded  int            `json:"discarded,omitempty"`
	DurationMs float64        `json:"duration_ms,omitempty"`
}

// EncodeJSON encodes an event as a JSON object
func EncodeJSON(e dmx.Event) ([]byte, error) {
	m := JSONMessage{Kind: e.Kind.String(), Time: e.Time}

	switch e.Kind {
	case dmx.EventSyncFound:
		if e.Resync != nil {
			m.Chunks = e.Resync.Chunks
			m.Discarded = e.Resync.Discarded
			m.DurationMs = float64(e.Resync.Duration.Microseconds()) / 1000
		}
	case dmx.EventFrame:
		if e.Frame != nil {
			sc := e.Frame.StartCode()
			m.Seq = e.Frame.Seq()
			m.StartCode = &sc
			m.Slots = make([]int, len(e.Frame.Slots()))
			for i, v := range e.Frame.Slots() {
				m.Slots[i] = int(v)
			}
		}
	case dmx.EventMonitored:
		if e.Frame != nil {
			m.Seq = e.Frame.Seq()
		}
		m.Monitored = make(map[string]int, len(e.Monitored))
		for a, v := range e.Monitored {
			m.Monitored[fmt.Sprint(a)] = v
		}
	}

	return json.Marshal(m)
}

// DecodeJSON parses a message produced by EncodeJSON
func DecodeJSON(data []byte) (dmx.Event, error) {
	var m JSONMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return dmx.Event{}, fmt.Errorf("failed to decode JSON: %w", err)
	}

	e := dmx.Event{Time: m.Time}
	switch m.Kind {
	case dmx.EventSyncLost.String():
		e.Kind = dmx.EventSyncLost
	case dmx.EventSyncFound.String():
		e.Kind = dmx.EventSyncFound
		e.Resync = &dmx.ResyncInfo{
			Chunks:    m.Chunks,
			Discarded: m.Discarded,
			Duration:  time.Duration(m.DurationMs * float64(time.Millisecond)),
		}
	case dmx.EventFrame.String():
		e.Kind = dmx.EventFrame
		if m.StartCode == nil {
			return dmx.Event{}, fmt.Errorf("frame message without start code")
		}
		if len(m.Slots) > dmx.SlotCount {
			return dmx.Event{}, fmt.Errorf("frame message with %d slots", len(m.Slots))
		}
		slots := make([]byte, len(m.Slots))
		for i, v := range m.Slots {
			if v < 0 || v > 255 {
				return dmx.Event{}, fmt.Errorf("slot %d out of range: %d", i, v)
			}
			slots[i] = byte(v)
		}
		e.Frame = dmx.RestoreFrame(m.Seq, *m.StartCode, slots, m.Time)
	case dmx.EventMonitored.String():
		e.Kind = dmx.EventMonitored
		e.Frame = dmx.RestoreFrame(m.Seq, 0, nil, m.Time)
		e.Monitored = make(map[int]int, len(m.Monitored))
		for k, v := range m.Monitored {
			var a int
			if _, err := fmt.Sscan(k, &a); err != nil {
				return dmx.Event{}, fmt.Errorf("bad monitored address %q", k)
			}
			e.Monitored[a] = v
		}
	default:
		return dmx.Event{}, fmt.Errorf("unknown message kind %q", m.Kind)
	}

	return e, nil
}
