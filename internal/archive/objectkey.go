package archive

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "portal"

// ObjectKey builds the storage key for a record:
//
//	{prefix}/{type}/{YYYY-MM-DD}/{timestamp}-{uuid}.json
//
// The day partition is the first ten characters of the timestamp, which lets
// lifecycle rules act per day and per type without listing. The random
// suffix keeps keys unique across concurrent writers sharing a timestamp.
func ObjectKey(prefix string, t RecordType, timestamp string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return prefix + "/" + string(t) + "/" + dayPartition(timestamp) + "/" +
		timestamp + "-" + uuid.NewString() + ".json"
}

// DayPrefix returns the listing prefix for one type and day, with a trailing
// slash.
func DayPrefix(prefix string, t RecordType, day string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "/" + string(t) + "/" + day + "/"
}

func dayPartition(timestamp string) string {
	if len(timestamp) < 10 {
		return timestamp
	}
	return timestamp[:10]
}
