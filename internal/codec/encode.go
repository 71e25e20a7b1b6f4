package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Encode maps a native value to its wire form. It is total: a Go type the
// wire format has no representation for falls back to its fmt.Sprint form,
// which loses the type but never fails.
func Encode(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case primitive.Null:
		return nil
	case bool, string, int64, float64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case primitive.ObjectID:
		return tagged(TypeObjectID, t.Hex())
	case primitive.DateTime:
		return tagged(TypeDateTime, t.Time().UTC().Format(timeLayout))
	case time.Time:
		return tagged(TypeDateTime, t.UTC().Format(timeLayout))
	case primitive.Binary:
		return tagged(TypeBinary, encodeBinary(t))
	case []byte:
		return tagged(TypeBinary, encodeBinary(primitive.Binary{Data: t}))
	case bson.D:
		return EncodeDocument(t)
	case bson.M:
		return EncodeDocument(sortedDocument(t))
	case map[string]any:
		return EncodeDocument(sortedDocument(t))
	case bson.A:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = Encode(e)
		}
		return out
	case []any:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = Encode(e)
		}
		return out
	default:
		return fmt.Sprint(t)
	}
}

// EncodeDocument maps a native document to its wire form, moving the _id
// element to the front when present.
func EncodeDocument(doc bson.D) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if e.Key == "_id" {
			out = append(out, bson.E{Key: e.Key, Value: Encode(e.Value)})
			break
		}
	}
	for _, e := range doc {
		if e.Key == "_id" {
			continue
		}
		out = append(out, bson.E{Key: e.Key, Value: Encode(e.Value)})
	}
	return out
}

// MarshalDocument serializes a native document straight to its wire JSON.
func MarshalDocument(doc bson.D) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeWire(&buf, EncodeDocument(doc)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeWire emits a wire value as JSON, keeping document key order.
func writeWire(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case bson.D:
		buf.WriteByte('{')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(e.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeWire(buf, e.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case bson.A:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeWire(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(data)
		return nil
	}
}

func tagged(name, value string) bson.D {
	return bson.D{
		{Key: typeKey, Value: name},
		{Key: valueKey, Value: value},
	}
}

func encodeBinary(b primitive.Binary) string {
	return fmt.Sprintf("%02x:%s", b.Subtype, base64.StdEncoding.EncodeToString(b.Data))
}

// sortedDocument fixes an order for map-backed documents so their wire form
// is deterministic.
func sortedDocument(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(m))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m[k]})
	}
	return doc
}
