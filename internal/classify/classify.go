// Package classify parses raw OasisDB log lines and tags them with event
// categories.
//
// The server emits one JSON object per line:
//
//	{"level":"INFO","msg":"compact starting","ts":"...","caller":"...","duration":"..."}
//
// Lines that are not valid JSON are wrapped as Unparsed and skip the rule
// table entirely. All other rules are independent substring checks against
// the message: a single entry may carry several categories (an ERROR during
// compaction counts toward both the compact and error statistics).
package classify

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Category labels a classified log event.
type Category string

const (
	CompactStarted       Category = "compact_started"
	CompactCompleted     Category = "compact_completed"
	CompactTriggered     Category = "compact_triggered"
	CompactGeneric       Category = "compact_event"
	CollectionGetSuccess Category = "get_collection_success"
	CollectionGetError   Category = "get_collection_error"
	LsmOperation         Category = "lsm_operation"
	GenericError         Category = "generic_error"
	Unparsed             Category = "unparsed"
)

// Level is the log level reported by the server.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
	LevelUnknown Level = ""
)

// Entry is one parsed log record. For lines that fail JSON parsing only
// Raw is populated.
type Entry struct {
	Timestamp string
	Level     Level
	Message   string
	Caller    string
	Duration  string
	Raw       string
}

// Event is an Entry plus the categories it matched.
type Event struct {
	Categories []Category
	Entry      Entry
}

// Has reports whether the event carries the given category.
func (e Event) Has(c Category) bool {
	for _, got := range e.Categories {
		if got == c {
			return true
		}
	}
	return false
}

// parseLevel normalizes the level field. Anything outside the known set
// maps to LevelUnknown so a misbehaving logger cannot inflate counters.
func parseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelUnknown
	}
}

// Parse converts a raw line into an Entry. The boolean reports whether
// the line was a JSON object; when false, only Raw is set.
func Parse(line string) (Entry, bool) {
	trimmed := strings.TrimSpace(line)
	if !gjson.Valid(trimmed) {
		return Entry{Raw: trimmed}, false
	}
	parsed := gjson.Parse(trimmed)
	if !parsed.IsObject() {
		return Entry{Raw: trimmed}, false
	}
	return Entry{
		Timestamp: parsed.Get("ts").String(),
		Level:     parseLevel(parsed.Get("level").String()),
		Message:   parsed.Get("msg").String(),
		Caller:    parsed.Get("caller").String(),
		Duration:  parsed.Get("duration").String(),
	}, true
}

// Classify runs the rule table over one raw line. Classification is pure:
// the same line always produces the same category set.
func Classify(line string) Event {
	entry, ok := Parse(line)
	if !ok {
		return Event{Categories: []Category{Unparsed}, Entry: entry}
	}

	var cats []Category
	msg := strings.ToLower(entry.Message)

	if strings.Contains(msg, "compact") {
		cats = append(cats, CompactGeneric)
		if strings.Contains(msg, "starting") {
			cats = append(cats, CompactStarted)
		}
		if strings.Contains(msg, "completed") {
			cats = append(cats, CompactCompleted)
		}
		if strings.Contains(msg, "trigger") {
			cats = append(cats, CompactTriggered)
		}
	}

	// The error-vs-success split applies only inside this branch; a get
	// failure visible solely through the caller field and lacking "get"
	// in the message is deliberately not widened into an error category.
	if strings.Contains(msg, "collection") &&
		(strings.Contains(msg, "get") || strings.Contains(entry.Caller, "GetCollection")) {
		if entry.Level == LevelError {
			cats = append(cats, CollectionGetError)
		} else {
			cats = append(cats, CollectionGetSuccess)
		}
	}

	if strings.Contains(msg, "lsm") || strings.Contains(msg, "sstable") || strings.Contains(msg, "memtable") {
		cats = append(cats, LsmOperation)
	}

	if entry.Level == LevelError {
		cats = append(cats, GenericError)
	}

	return Event{Categories: cats, Entry: entry}
}
