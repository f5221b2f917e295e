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
package schema

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/sneldb/sneldb/binformat"
	"github.com/sneldb/sneldb/snelerr"
)

// wireRecord is the JSON-encoded body of one append-only store frame.
// JSON keeps the store human-diffable, matching the
// schema.json persistence in storage/database.go; the CRC32 framing
// around it is what makes it an append-only log instead of a
// rewrite-the-whole-file document.
type wireRecord struct {
	EventType string               `json:"event_type"`
	UID       string               `json:"uid"`
	Fields    map[string]wireField `json:"fields"`
}

type wireField struct {
	Kind     string      `json:"kind"`
	Variants []string    `json:"variants,omitempty"`
	Inner    *wireField  `json:"inner,omitempty"`
}

func toWire(f FieldType) wireField {
	w := wireField{Kind: f.Kind.String(), Variants: f.Variants}
	if f.Inner != nil {
		inner := toWire(*f.Inner)
		w.Inner = &inner
	}
	return w
}

func fromWire(w wireField) (FieldType, error) {
	var f FieldType
	switch w.Kind {
	case "string":
		f.Kind = KindString
	case "u64":
		f.Kind = KindU64
	case "i64":
		f.Kind = KindI64
	case "f64":
		f.Kind = KindF64
	case "bool":
		f.Kind = KindBool
	case "date":
		f.Kind = KindI32Date
	case "enum":
		f.Kind = KindEnum
		f.Variants = w.Variants
	case "optional":
		f.Kind = KindOptional
		if w.Inner == nil {
			return f, snelerr.New(snelerr.Corrupt, "optional field missing inner type")
		}
		inner, err := fromWire(*w.Inner)
		if err != nil {
			return f, err
		}
		f.Inner = &inner
	default:
		return f, snelerr.New(snelerr.Corrupt, "unknown field kind: "+w.Kind)
	}
	return f, nil
}

// Store is the append-only, CRC32-framed schema log: header + repeated
// [len u32][crc32 u32][json(wireRecord)] frames. Corrupted frames are
// skipped, never aborting the whole load, mirroring the WAL's recovery
// posture applied here to the schema log.
type Store struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenStore opens (creating if absent) the schema store file at path.
func OpenStore(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "open schema store")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, snelerr.Wrap(snelerr.Internal, err, "stat schema store")
	}
	if fi.Size() == 0 {
		if err := binformat.NewHeader(binformat.KindSchemaStore).Write(f); err != nil {
			f.Close()
			return nil, snelerr.Wrap(snelerr.Internal, err, "write schema store header")
		}
	}
	return &Store{path: path, f: f}, nil
}

// Append writes one Record frame and fsyncs the store.
func (s *Store) Append(rec Record) error {
	wr := wireRecord{EventType: rec.EventType, UID: rec.UID, Fields: make(map[string]wireField, len(rec.Fields))}
	for name, f := range rec.Fields {
		wr.Fields[name] = toWire(f)
	}
	body, err := json.Marshal(wr)
	if err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "marshal schema record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Seek(0, io.SeekEnd); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "seek schema store")
	}
	var frame bytes.Buffer
	binary.Write(&frame, binary.LittleEndian, uint32(len(body)))
	binary.Write(&frame, binary.LittleEndian, crc32.ChecksumIEEE(body))
	frame.Write(body)
	if _, err := s.f.Write(frame.Bytes()); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "write schema record")
	}
	return s.f.Sync()
}

// Load replays every valid frame in the store, in append order.
// Frames with a bad CRC or an undecodable body are skipped and bump
// corruptFrames. A truncated length, CRC or body ends the load: the
// records read so far are returned without an error and the truncated
// frame is not counted.
func (s *Store) Load() (records []Record, corruptFrames int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, snelerr.Wrap(snelerr.Internal, err, "seek schema store")
	}
	if _, err := binformat.ReadHeader(s.f, binformat.KindSchemaStore); err != nil {
		return nil, 0, err
	}
	for {
		var length, crc uint32
		if err := binary.Read(s.f, binary.LittleEndian, &length); err != nil {
			if err == io.EOF {
				break
			}
			return records, corruptFrames, nil // truncated length field terminates replay, not the caller
		}
		if err := binary.Read(s.f, binary.LittleEndian, &crc); err != nil {
			return records, corruptFrames, nil
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(s.f, body); err != nil {
			return records, corruptFrames, nil
		}
		if crc32.ChecksumIEEE(body) != crc {
			corruptFrames++
			continue
		}
		var wr wireRecord
		if err := json.Unmarshal(body, &wr); err != nil {
			corruptFrames++
			continue
		}
		fields := make(map[string]FieldType, len(wr.Fields))
		ok := true
		for name, wf := range wr.Fields {
			f, ferr := fromWire(wf)
			if ferr != nil {
				ok = false
				break
			}
			fields[name] = f
		}
		if !ok {
			corruptFrames++
			continue
		}
		records = append(records, Record{EventType: wr.EventType, UID: wr.UID, Fields: fields})
	}
	return records, corruptFrames, nil
}

// Close closes the underlying file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
