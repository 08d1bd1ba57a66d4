// Package codec encodes usage snapshots in protobuf wire format.
//
// Messages are built directly with protowire; there is no generated code.
// Field 1 of the top-level message is always begin_time so PeekBeginTime can
// read the key of a bucket without decoding the whole payload.
//
//	Snapshot      { 1 begin_time sint64; 2 end_time sint64; 3 packages repeated;
//	                4 configurations repeated; 5 active_configuration string;
//	                6 events repeated }
//	PackageStats  { 1 package_name; 2 begin_time; 3 end_time; 4 last_time_used;
//	                5 total_time_in_foreground; 6 launch_count; 7 last_event;
//	                8 chooser repeated ChooserAction }
//	ChooserAction { 1 action; 2 counts repeated { 1 category; 2 count } }
//	Configuration { 1 configuration; 2 begin_time; 3 end_time; 4 last_time_active;
//	                5 total_time_active; 6 activation_count }
//	Event         { 1 package_name; 2 class_name; 3 time_stamp; 4 event_type;
//	                5 configuration; 6 shortcut_id }
package codec

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/usagestats-go/internal/core/domain"
)

const (
	fieldBeginTime           protowire.Number = 1
	fieldEndTime             protowire.Number = 2
	fieldPackages            protowire.Number = 3
	fieldConfigurations      protowire.Number = 4
	fieldActiveConfiguration protowire.Number = 5
	fieldEvents              protowire.Number = 6
)

// Proto is the protobuf wire codec. The zero value is ready to use.
type Proto struct{}

// New returns a protobuf wire codec.
func New() *Proto {
	return &Proto{}
}

// Encode serializes a snapshot. Map entries are written in key order so equal
// snapshots encode to equal bytes.
func (Proto) Encode(s *domain.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, domain.ErrEncodeFailure.WithDetails("nil snapshot")
	}

	b := make([]byte, 0, 256)
	b = appendSint64(b, fieldBeginTime, s.BeginTime)
	b = appendSint64(b, fieldEndTime, s.EndTime)

	for _, name := range sortedKeys(s.Packages) {
		p := s.Packages[name]
		if p == nil {
			continue
		}
		b = protowire.AppendTag(b, fieldPackages, protowire.BytesType)
		b = protowire.AppendBytes(b, encodePackage(p))
	}
	for _, key := range sortedKeys(s.Configurations) {
		c := s.Configurations[key]
		if c == nil {
			continue
		}
		b = protowire.AppendTag(b, fieldConfigurations, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeConfiguration(c))
	}
	if s.ActiveConfiguration != "" {
		b = appendString(b, fieldActiveConfiguration, s.ActiveConfiguration)
	}
	for i := range s.Events {
		b = protowire.AppendTag(b, fieldEvents, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeEvent(&s.Events[i]))
	}
	return b, nil
}

// Decode parses a snapshot. Unknown fields are skipped.
func (Proto) Decode(data []byte) (*domain.Snapshot, error) {
	s := domain.NewSnapshot(0, 0)
	err := walk(data, func(num protowire.Number, typ protowire.Type, v field) error {
		switch num {
		case fieldBeginTime:
			s.BeginTime = v.sint64()
		case fieldEndTime:
			s.EndTime = v.sint64()
		case fieldPackages:
			p, err := decodePackage(v.bytes)
			if err != nil {
				return err
			}
			s.Packages[p.PackageName] = p
		case fieldConfigurations:
			c, err := decodeConfiguration(v.bytes)
			if err != nil {
				return err
			}
			s.Configurations[c.Configuration] = c
		case fieldActiveConfiguration:
			s.ActiveConfiguration = string(v.bytes)
		case fieldEvents:
			e, err := decodeEvent(v.bytes)
			if err != nil {
				return err
			}
			s.Events = append(s.Events, e)
		}
		return nil
	})
	if err != nil {
		return nil, domain.ErrDecodeFailure.WithCause(err)
	}
	return s, nil
}

// PeekBeginTime returns the begin time of an encoded snapshot.
func (Proto) PeekBeginTime(data []byte) (int64, error) {
	num, typ, n := protowire.ConsumeTag(data)
	if n < 0 {
		return 0, domain.ErrDecodeFailure.WithCause(protowire.ParseError(n))
	}
	if num != fieldBeginTime || typ != protowire.VarintType {
		return 0, domain.ErrDecodeFailure.WithDetails("leading field %d is not begin_time", num)
	}
	v, m := protowire.ConsumeVarint(data[n:])
	if m < 0 {
		return 0, domain.ErrDecodeFailure.WithCause(protowire.ParseError(m))
	}
	return protowire.DecodeZigZag(v), nil
}

func encodePackage(p *domain.PackageStats) []byte {
	var b []byte
	b = appendString(b, 1, p.PackageName)
	b = appendSint64(b, 2, p.BeginTime)
	b = appendSint64(b, 3, p.EndTime)
	b = appendSint64(b, 4, p.LastTimeUsed)
	b = appendSint64(b, 5, p.TotalTimeInForeground)
	b = appendInt32(b, 6, p.LaunchCount)
	b = appendInt32(b, 7, p.LastEvent)
	for _, action := range sortedKeys(p.ChooserCounts) {
		var ab []byte
		ab = appendString(ab, 1, action)
		cats := p.ChooserCounts[action]
		for _, cat := range sortedKeys(cats) {
			var cb []byte
			cb = appendString(cb, 1, cat)
			cb = appendInt32(cb, 2, cats[cat])
			ab = protowire.AppendTag(ab, 2, protowire.BytesType)
			ab = protowire.AppendBytes(ab, cb)
		}
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, ab)
	}
	return b
}

func decodePackage(data []byte) (*domain.PackageStats, error) {
	p := &domain.PackageStats{}
	err := walk(data, func(num protowire.Number, _ protowire.Type, v field) error {
		switch num {
		case 1:
			p.PackageName = string(v.bytes)
		case 2:
			p.BeginTime = v.sint64()
		case 3:
			p.EndTime = v.sint64()
		case 4:
			p.LastTimeUsed = v.sint64()
		case 5:
			p.TotalTimeInForeground = v.sint64()
		case 6:
			p.LaunchCount = int32(v.varint)
		case 7:
			p.LastEvent = int32(v.varint)
		case 8:
			return decodeChooserAction(v.bytes, p)
		}
		return nil
	})
	return p, err
}

func decodeChooserAction(data []byte, p *domain.PackageStats) error {
	var action string
	type count struct {
		category string
		n        int32
	}
	var counts []count
	err := walk(data, func(num protowire.Number, _ protowire.Type, v field) error {
		switch num {
		case 1:
			action = string(v.bytes)
		case 2:
			var c count
			if err := walk(v.bytes, func(num protowire.Number, _ protowire.Type, v field) error {
				switch num {
				case 1:
					c.category = string(v.bytes)
				case 2:
					c.n = int32(v.varint)
				}
				return nil
			}); err != nil {
				return err
			}
			counts = append(counts, c)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range counts {
		p.AddChooserCount(action, c.category, c.n)
	}
	return nil
}

func encodeConfiguration(c *domain.ConfigurationStats) []byte {
	var b []byte
	b = appendString(b, 1, c.Configuration)
	b = appendSint64(b, 2, c.BeginTime)
	b = appendSint64(b, 3, c.EndTime)
	b = appendSint64(b, 4, c.LastTimeActive)
	b = appendSint64(b, 5, c.TotalTimeActive)
	b = appendInt32(b, 6, c.ActivationCount)
	return b
}

func decodeConfiguration(data []byte) (*domain.ConfigurationStats, error) {
	c := &domain.ConfigurationStats{}
	err := walk(data, func(num protowire.Number, _ protowire.Type, v field) error {
		switch num {
		case 1:
			c.Configuration = string(v.bytes)
		case 2:
			c.BeginTime = v.sint64()
		case 3:
			c.EndTime = v.sint64()
		case 4:
			c.LastTimeActive = v.sint64()
		case 5:
			c.TotalTimeActive = v.sint64()
		case 6:
			c.ActivationCount = int32(v.varint)
		}
		return nil
	})
	return c, err
}

func encodeEvent(e *domain.Event) []byte {
	var b []byte
	b = appendString(b, 1, e.PackageName)
	if e.ClassName != "" {
		b = appendString(b, 2, e.ClassName)
	}
	b = appendSint64(b, 3, e.TimeStamp)
	b = appendInt32(b, 4, e.EventType)
	if e.Configuration != "" {
		b = appendString(b, 5, e.Configuration)
	}
	if e.ShortcutID != "" {
		b = appendString(b, 6, e.ShortcutID)
	}
	return b
}

func decodeEvent(data []byte) (domain.Event, error) {
	var e domain.Event
	err := walk(data, func(num protowire.Number, _ protowire.Type, v field) error {
		switch num {
		case 1:
			e.PackageName = string(v.bytes)
		case 2:
			e.ClassName = string(v.bytes)
		case 3:
			e.TimeStamp = v.sint64()
		case 4:
			e.EventType = int32(v.varint)
		case 5:
			e.Configuration = string(v.bytes)
		case 6:
			e.ShortcutID = string(v.bytes)
		}
		return nil
	})
	return e, err
}

// field is a decoded field value; only the member matching the wire type is set.
type field struct {
	varint uint64
	bytes  []byte
}

func (f field) sint64() int64 {
	return protowire.DecodeZigZag(f.varint)
}

// walk iterates over the fields of one message.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, v field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		var v field
		switch typ {
		case protowire.VarintType:
			v.varint, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			v.bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}

func appendSint64(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
