// Package codec maps MongoDB document values to a JSON-safe wire form and
// back. Scalars pass through unchanged; ObjectIds, datetimes and binary
// blobs become tagged wrappers so the round trip through a backup file is
// lossless. Documents keep their key order on disk.
package codec

const (
	typeKey  = "$type"
	valueKey = "$value"

	// TypeObjectID tags a 12-byte ObjectId, carried as its hex form.
	TypeObjectID = "ObjectId"
	// TypeDateTime tags a datetime, carried as RFC 3339 at millisecond
	// precision in UTC.
	TypeDateTime = "datetime"
	// TypeBinary tags a binary blob, carried as "<subtype-hex>:<base64>" so
	// the subtype byte survives the round trip.
	TypeBinary = "binary"
)

// timeLayout is RFC 3339 at millisecond precision, the precision the wire
// format guarantees for datetimes.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"
