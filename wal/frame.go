/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package wal

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/snelerr"
)

// Entry is exactly what WAL persists per accepted event:
// {context_id, timestamp, event_type, payload, event_id}, framed as
// [len u32][crc32 u32][payload].
type Entry struct {
	ContextID string
	Timestamp uint64
	EventType string
	Payload   []byte // raw JSON payload bytes
	EventID   uint64
}

// ToEvent converts a recovered Entry back into an event.Event.
func (e Entry) ToEvent() event.Event {
	return event.Event{
		EventID:   e.EventID,
		Timestamp: e.Timestamp,
		EventType: e.EventType,
		ContextID: e.ContextID,
		Payload:   e.Payload,
	}
}

func FromEvent(ev event.Event) Entry {
	return Entry{
		ContextID: ev.ContextID,
		Timestamp: ev.Timestamp,
		EventType: ev.EventType,
		Payload:   ev.Payload,
		EventID:   ev.EventID,
	}
}

// encodeBody packs an Entry into a flat binary body. This is this repo's
// stand-in for a bincode-style payload encoding: a compact,
// self-describing binary layout in the same length-prefixed style the
// teacher uses throughout storage/storage-int.go (binary.Write of fixed
// fields ahead of variable-length payload).
func encodeBody(e Entry) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, e.EventID)
	binary.Write(&b, binary.LittleEndian, e.Timestamp)
	binary.Write(&b, binary.LittleEndian, uint16(len(e.EventType)))
	b.WriteString(e.EventType)
	binary.Write(&b, binary.LittleEndian, uint16(len(e.ContextID)))
	b.WriteString(e.ContextID)
	binary.Write(&b, binary.LittleEndian, uint32(len(e.Payload)))
	b.Write(e.Payload)
	return b.Bytes()
}

func decodeBody(body []byte) (Entry, error) {
	r := bytes.NewReader(body)
	var e Entry
	if err := binary.Read(r, binary.LittleEndian, &e.EventID); err != nil {
		return e, err
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Timestamp); err != nil {
		return e, err
	}
	var l16 uint16
	if err := binary.Read(r, binary.LittleEndian, &l16); err != nil {
		return e, err
	}
	eventType := make([]byte, l16)
	if _, err := io.ReadFull(r, eventType); err != nil {
		return e, err
	}
	e.EventType = string(eventType)
	if err := binary.Read(r, binary.LittleEndian, &l16); err != nil {
		return e, err
	}
	contextID := make([]byte, l16)
	if _, err := io.ReadFull(r, contextID); err != nil {
		return e, err
	}
	e.ContextID = string(contextID)
	var l32 uint32
	if err := binary.Read(r, binary.LittleEndian, &l32); err != nil {
		return e, err
	}
	payload := make([]byte, l32)
	if _, err := io.ReadFull(r, payload); err != nil {
		return e, err
	}
	e.Payload = payload
	return e, nil
}

// writeFrame appends [len u32][crc32 u32][payload] to w.
func writeFrame(w io.Writer, e Entry) (int, error) {
	body := encodeBody(e)
	var frame bytes.Buffer
	binary.Write(&frame, binary.LittleEndian, uint32(len(body)))
	binary.Write(&frame, binary.LittleEndian, crc32.ChecksumIEEE(body))
	frame.Write(body)
	n, err := w.Write(frame.Bytes())
	if err != nil {
		return n, snelerr.Wrap(snelerr.Internal, err, "wal: write frame")
	}
	return n, nil
}

// readFrame reads one frame from r. On bad CRC it returns ErrCorruptFrame,
// which callers treat as recoverable: skip and continue.
func readFrame(r io.Reader) (Entry, error) {
	var length, crc uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return Entry{}, err // EOF or truncated length terminates this file's replay
	}
	if err := binary.Read(r, binary.LittleEndian, &crc); err != nil {
		return Entry{}, io.ErrUnexpectedEOF
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Entry{}, io.ErrUnexpectedEOF
	}
	if crc32.ChecksumIEEE(body) != crc {
		return Entry{}, ErrCorruptFrame
	}
	e, err := decodeBody(body)
	if err != nil {
		return Entry{}, ErrCorruptFrame
	}
	return e, nil
}

// ErrCorruptFrame marks a frame whose CRC did not match its body.
var ErrCorruptFrame = snelerr.New(snelerr.Corrupt, "wal: frame crc mismatch")
