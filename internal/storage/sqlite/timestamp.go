package sqlite

import (
	"fmt"
	"time"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
}

// timestamp scans DATETIME columns whether the driver hands back a
// time.Time or the raw CURRENT_TIMESTAMP text.
type timestamp struct {
	dst *time.Time
}

func (ts timestamp) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*ts.dst = time.Time{}
		return nil
	case time.Time:
		*ts.dst = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case int64:
		*ts.dst = time.Unix(v, 0).UTC()
		return nil
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", value)
	}
}

func (ts timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*ts.dst = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan timestamp: unrecognized format %q", s)
}
