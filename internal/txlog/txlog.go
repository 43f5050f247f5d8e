// Package txlog reads events and attributes out of a transaction's raw log.
package txlog

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/manifest-network/txpipe/internal/models"
)

// ParseRawLog decodes the JSON raw log of a successful transaction.
// Failed transactions carry a plain error string instead, which is an error here.
func ParseRawLog(rawLog string) ([]models.TxLog, error) {
	rawLog = strings.TrimSpace(rawLog)
	if rawLog == "" {
		return nil, errors.New("raw log is empty")
	}

	var logs []models.TxLog
	if err := json.Unmarshal([]byte(rawLog), &logs); err != nil {
		return nil, errors.WithMessage(err, "error parsing raw log")
	}
	return logs, nil
}

// PickRawLog returns the log of the message at index, or nil.
// Decoded logs on info are preferred over its raw log string.
func PickRawLog(info *models.TxInfo, index int) *models.TxLog {
	if info == nil || index < 0 {
		return nil
	}

	logs := info.Logs
	if len(logs) == 0 {
		parsed, err := ParseRawLog(info.RawLog)
		if err != nil {
			return nil
		}
		logs = parsed
	}

	for i := range logs {
		if logs[i].MsgIndex == index {
			return &logs[i]
		}
	}
	if index < len(logs) {
		return &logs[index]
	}
	return nil
}

// PickEvent returns the first event of the given type, or nil.
func PickEvent(log *models.TxLog, eventType string) *models.Event {
	if log == nil {
		return nil
	}
	for i := range log.Events {
		if log.Events[i].Type == eventType {
			return &log.Events[i]
		}
	}
	return nil
}

// PickAttributeValue returns the value of the attribute at position.
func PickAttributeValue(event *models.Event, position int) (string, bool) {
	if event == nil || position < 0 || position >= len(event.Attributes) {
		return "", false
	}
	return event.Attributes[position].Value, true
}

// PickAttributeValueByKey returns the value of the first attribute named key.
func PickAttributeValueByKey(event *models.Event, key string) (string, bool) {
	if event == nil {
		return "", false
	}
	for _, attr := range event.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}
