// Package internal holds helpers shared by the server and the operator tools.
package internal

import (
	"encoding/binary"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow

// Scan reads at most limit entries under prefix without modifying anything.
// A limit of zero means no limit.
func Scan(db *badger.DB, prefix string, limit int, mapper RowMapper) ([]InspectRow, error) {
	if mapper == nil {
		mapper = DefaultMapper
	}
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if limit > 0 && len(rows) == limit {
				return nil
			}
			item := it.Item()
			key := string(item.Key())
			if err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(key, val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// DefaultMapper recognises the key families written by the repositories.
func DefaultMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	family, _, _ := strings.Cut(key, ":")
	switch family {
	case "msg", "user", "notif":
		row.Type = strings.ToUpper(family)
		var doc map[string]any
		if err := json.Unmarshal(val, &doc); err != nil {
			return row
		}
		if created, ok := doc["created_at"].(string); ok {
			if at, err := time.Parse(time.RFC3339Nano, created); err == nil {
				row.Timestamp = at.Format("2006-01-02 15:04:05")
			}
		}
		row.Detail = summary(family, doc)
	case "peer", "user_email":
		row.Type = "POINTER"
		switch len(val) {
		case 8:
			row.Detail = "-> " + strconv.FormatUint(binary.BigEndian.Uint64(val), 10)
		case 16:
			at := time.Unix(0, int64(binary.BigEndian.Uint64(val[:8]))).UTC()
			row.Timestamp = at.Format("2006-01-02 15:04:05")
			row.Detail = "-> " + strconv.FormatUint(binary.BigEndian.Uint64(val[8:]), 10)
		}
	case "conv", "unread", "notif_user":
		row.Type = "INDEX"
		row.Detail = "-"
	case "seq":
		row.Type = "SEQUENCE"
		if len(val) == 8 {
			row.Detail = "lease " + strconv.FormatUint(binary.BigEndian.Uint64(val), 10)
		}
	}
	return row
}

func summary(family string, doc map[string]any) string {
	switch family {
	case "msg":
		return field(doc, "sender_id") + " -> " + field(doc, "receiver_id") + " read=" + field(doc, "is_read") + " " + truncate(field(doc, "body"), 40)
	case "user":
		return field(doc, "name") + " <" + field(doc, "email") + "> " + field(doc, "role")
	default:
		return "user " + field(doc, "user_id") + " [" + field(doc, "kind") + "] read=" + field(doc, "is_read") + " " + truncate(field(doc, "message"), 40)
	}
}

func field(doc map[string]any, name string) string {
	switch v := doc[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
