// Package message defines the value type carried end-to-end through the
// pipeline, from sensor to sink.
//
// A Message is either a sample (scalar or vector of numbers) or a control
// message whose data field carries the shutdown sentinel. The sentinel is an
// explicit state on the Data type, never a magic numeric value, so it cannot
// be confused with a legitimate zero sample or an empty vector.
//
// The wire encoding is a flat JSON object with fields id, name, data and
// time_stamp. The sentinel encodes as JSON null. Decoders ignore unknown
// fields.
package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tkarlsson/sensord/internal/errors"
)

// TimestampLayout is the wall-clock layout for the seconds part of a
// timestamp. The microseconds are appended after a ':' separator, which the
// stdlib layout syntax cannot express, so formatting and parsing are done in
// FormatTimestamp and ParseTimestamp.
const TimestampLayout = "2006-01-02_15:04:05"

// FormatTimestamp renders t as YYYY-MM-DD_HH:MM:SS:ffffff.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout) + fmt.Sprintf(":%06d", t.Nanosecond()/1000)
}

// ParseTimestamp parses a timestamp produced by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 || i != len(TimestampLayout) {
		return time.Time{}, fmt.Errorf("malformed timestamp %q", s)
	}
	base, err := time.ParseInLocation(TimestampLayout, s[:i], time.Local)
	if err != nil {
		return time.Time{}, err
	}
	micros, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return base.Add(time.Duration(micros) * time.Microsecond), nil
}

// =============================================================================
// Data
// =============================================================================

// Data is the payload of a message: a scalar, a vector of numbers, or the
// shutdown sentinel.
type Data struct {
	values   []float64
	scalar   bool
	sentinel bool
}

// Scalar returns a Data holding a single number.
func Scalar(v float64) Data {
	return Data{values: []float64{v}, scalar: true}
}

// Vector returns a Data holding a sequence of numbers.
// The slice is copied so later mutation by the caller is not visible.
func Vector(vs []float64) Data {
	cp := make([]float64, len(vs))
	copy(cp, vs)
	return Data{values: cp}
}

// Sentinel returns the shutdown sentinel.
func Sentinel() Data {
	return Data{sentinel: true}
}

// IsSentinel reports whether d is the shutdown sentinel.
func (d Data) IsSentinel() bool { return d.sentinel }

// IsScalar reports whether d holds a single number.
func (d Data) IsScalar() bool { return d.scalar && !d.sentinel }

// Values returns the numeric values of d. It returns nil for the sentinel.
func (d Data) Values() []float64 {
	if d.sentinel {
		return nil
	}
	return d.values
}

// Value returns the first numeric value, or 0 for the sentinel or an empty
// vector. Use IsSentinel to distinguish.
func (d Data) Value() float64 {
	if d.sentinel || len(d.values) == 0 {
		return 0
	}
	return d.values[0]
}

// String renders d for the console and CSV sinks.
func (d Data) String() string {
	switch {
	case d.sentinel:
		return ""
	case d.scalar:
		return strconv.FormatFloat(d.values[0], 'g', -1, 64)
	default:
		parts := make([]string, len(d.values))
		for i, v := range d.values {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
}

// MarshalJSON encodes the sentinel as null, a scalar as a number and a
// vector as an array.
func (d Data) MarshalJSON() ([]byte, error) {
	switch {
	case d.sentinel:
		return []byte("null"), nil
	case d.scalar:
		return json.Marshal(d.values[0])
	default:
		return json.Marshal(d.values)
	}
}

// UnmarshalJSON accepts null, a number or an array of numbers.
func (d *Data) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*d = Sentinel()
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var vs []float64
		if err := json.Unmarshal(b, &vs); err != nil {
			return err
		}
		*d = Data{values: vs}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = Scalar(v)
	return nil
}

// =============================================================================
// Message
// =============================================================================

// Message is the unit of data generated by a sensor and delivered to every
// sink in the chain. The sensor id is immutable after construction. Sinks
// receive a shared pointer and must treat the message as read-only.
type Message struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Data      Data   `json:"data"`
	Timestamp string `json:"time_stamp"`
}

// New creates a sample message, stamping it with the current time.
func New(id int64, name string, data Data) *Message {
	return &Message{
		ID:        id,
		Name:      name,
		Data:      data,
		Timestamp: FormatTimestamp(time.Now()),
	}
}

// NewAt creates a message with an explicit timestamp, for replays and tests.
func NewAt(id int64, name string, data Data, ts time.Time) *Message {
	return &Message{
		ID:        id,
		Name:      name,
		Data:      data,
		Timestamp: FormatTimestamp(ts),
	}
}

// Control creates a shutdown control message for the given sensor.
func Control(id int64, name string) *Message {
	return New(id, name, Sentinel())
}

// IsControl reports whether m carries the shutdown sentinel.
func (m *Message) IsControl() bool {
	return m.Data.IsSentinel()
}

// FieldNames returns the message field names in declaration order. The CSV
// header and the SQL column set are derived from this.
func FieldNames() []string {
	return []string{"id", "name", "data", "time_stamp"}
}

// FieldValues returns the rendered field values in declaration order.
func (m *Message) FieldValues() []string {
	return []string{
		strconv.FormatInt(m.ID, 10),
		m.Name,
		m.Data.String(),
		m.Timestamp,
	}
}

// Encode serializes m to its wire form.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserializes a wire payload. Unknown fields are ignored; a payload
// that is not a JSON object fails with ErrDecodeFailure.
func Decode(payload []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, errors.Wrap(errors.ErrDecodeFailure, err.Error())
	}
	return &m, nil
}
