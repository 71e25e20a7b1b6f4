package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Decode maps a wire value back to its native form. Tagged wrappers with an
// unrecognized $type, or a malformed $value, decode as the literal nested
// document rather than failing, so files written by a newer tool still load.
// The wrapper shape is not escaped on encode, so a genuine document whose
// only fields are a known $type name and a well-formed $value decodes as the
// typed value, not as a document.
func Decode(v any) any {
	switch t := v.(type) {
	case bson.D:
		out := make(bson.D, 0, len(t))
		for _, e := range t {
			out = append(out, bson.E{Key: e.Key, Value: Decode(e.Value)})
		}
		return untag(out)
	case bson.A:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = Decode(e)
		}
		return out
	default:
		return v
	}
}

// UnmarshalDocument parses one wire JSON object into a native document.
func UnmarshalDocument(data []byte) (bson.D, error) {
	dec := newDecoder(bytes.NewReader(data))
	v, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	doc, ok := Decode(v).(bson.D)
	if !ok {
		return nil, fmt.Errorf("wire value is not a document")
	}
	return doc, nil
}

// UnmarshalArray parses a whole backup file (one top-level JSON array) into
// native documents.
func UnmarshalArray(data []byte) ([]bson.D, error) {
	r := NewReader(bytes.NewReader(data))
	var docs []bson.D
	for {
		doc, err := r.Next()
		if err == io.EOF {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// A Reader streams native documents out of a backup file's top-level JSON
// array, one element at a time, without holding the whole file in memory.
type Reader struct {
	dec     *json.Decoder
	started bool
	done    bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: newDecoder(r)}
}

// Next returns the next document in the array, or io.EOF after the closing
// bracket has been consumed.
func (r *Reader) Next() (bson.D, error) {
	if r.done {
		return nil, io.EOF
	}
	if !r.started {
		if err := expectDelim(r.dec, '['); err != nil {
			return nil, err
		}
		r.started = true
	}
	if !r.dec.More() {
		if err := expectDelim(r.dec, ']'); err != nil {
			return nil, err
		}
		r.done = true
		return nil, io.EOF
	}
	v, err := parseValue(r.dec)
	if err != nil {
		return nil, err
	}
	doc, ok := Decode(v).(bson.D)
	if !ok {
		return nil, fmt.Errorf("array element is not a document")
	}
	return doc, nil
}

// ValidateArray scans r checking that it holds exactly one syntactically
// valid top-level JSON array, and returns the element count. It never builds
// the decoded values, so it is cheap enough to run as a pre-pass.
func ValidateArray(r io.Reader) (int64, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '['); err != nil {
		return 0, err
	}
	var count int64
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return count, err
		}
		count++
	}
	if err := expectDelim(dec, ']'); err != nil {
		return count, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return count, fmt.Errorf("trailing data after array")
	}
	return count, nil
}

func newDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// parseValue reads one JSON value off the decoder, preserving object key
// order (bson.D) and number fidelity (int64 vs float64). It is purely
// syntactic; tagged wrappers are resolved later by Decode.
func parseValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc := bson.D{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				doc = append(doc, bson.E{Key: key, Value: val})
			}
			if err := expectDelim(dec, '}'); err != nil {
				return nil, err
			}
			return doc, nil
		case '[':
			arr := bson.A{}
			for dec.More() {
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case string, bool, nil:
		return t, nil
	case json.Number:
		return parseNumber(t)
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// parseNumber keeps the integer/float distinction: no fraction and no
// exponent means int64, anything else (or an int64 overflow) means float64.
func parseNumber(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	return n.Float64()
}

// untag resolves a two-field {$type, $value} document into its native type.
// Anything that does not match a known, well-formed wrapper comes back
// unchanged.
func untag(doc bson.D) any {
	if len(doc) != 2 {
		return doc
	}
	var typeName, value string
	var haveType, haveValue bool
	for _, e := range doc {
		s, ok := e.Value.(string)
		if !ok {
			return doc
		}
		switch e.Key {
		case typeKey:
			typeName, haveType = s, true
		case valueKey:
			value, haveValue = s, true
		}
	}
	if !haveType || !haveValue {
		return doc
	}

	switch typeName {
	case TypeObjectID:
		oid, err := primitive.ObjectIDFromHex(value)
		if err != nil {
			return doc
		}
		return oid
	case TypeDateTime:
		t, err := parseTime(value)
		if err != nil {
			return doc
		}
		return primitive.NewDateTimeFromTime(t)
	case TypeBinary:
		bin, err := decodeBinary(value)
		if err != nil {
			return doc
		}
		return bin
	default:
		return doc
	}
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func decodeBinary(s string) (primitive.Binary, error) {
	if len(s) < 3 || s[2] != ':' {
		return primitive.Binary{}, fmt.Errorf("malformed binary value")
	}
	subtype, err := strconv.ParseUint(s[:2], 16, 8)
	if err != nil {
		return primitive.Binary{}, fmt.Errorf("malformed binary subtype: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(s[3:])
	if err != nil {
		return primitive.Binary{}, fmt.Errorf("malformed binary payload: %w", err)
	}
	return primitive.Binary{Subtype: byte(subtype), Data: data}, nil
}
