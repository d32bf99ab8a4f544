package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"vigil/internal/api"
	"vigil/internal/logging"
)

// ParseLine decodes one line of the daemon's JSON log file. Attributes
// other than the well-known fields land in Fields as strings.
func ParseLine(line string) (api.LogEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return api.LogEvent{}, fmt.Errorf("decode log line: %w", err)
	}
	evt := api.LogEvent{
		Timestamp:     take(raw, "ts"),
		Level:         take(raw, "level"),
		Message:       take(raw, "msg"),
		Component:     take(raw, logging.FieldComponent),
		Stage:         take(raw, logging.FieldStage),
		SessionID:     take(raw, logging.FieldSessionID),
		CorrelationID: take(raw, logging.FieldCorrelationID),
	}
	delete(raw, "source")
	if len(raw) == 0 {
		return evt, nil
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	evt.Fields = make(map[string]string, len(keys))
	for _, key := range keys {
		evt.Fields[key] = stringify(raw[key])
	}
	return evt, nil
}

// Matches applies the session and component filters the API supports.
func Matches(evt api.LogEvent, sessionID, component string) bool {
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" && evt.SessionID != sessionID {
		return false
	}
	if component = strings.TrimSpace(component); component != "" && !strings.EqualFold(component, evt.Component) {
		return false
	}
	return true
}

func take(raw map[string]any, key string) string {
	value, ok := raw[key]
	if !ok {
		return ""
	}
	delete(raw, key)
	return stringify(value)
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
