package storage

import (
	"fmt"
	"time"
)

// sqliteTimestampFormats are the layouts go-sqlite3 writes and reads.
var sqliteTimestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// timestampScanner scans aggregate timestamp columns, which SQLite returns
// as text because they carry no declared type.
type timestampScanner struct {
	t time.Time
}

func (s *timestampScanner) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		s.t = time.Time{}
		return nil
	case time.Time:
		s.t = v
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (s *timestampScanner) parse(v string) error {
	for _, layout := range sqliteTimestampFormats {
		if t, err := time.Parse(layout, v); err == nil {
			s.t = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", v)
}
