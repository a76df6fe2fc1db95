package gormstore

import (
	"encoding/json"
	"fmt"

	"github.com/corrigan-tasks/engine/internal/frame"
)

// encodeData implements the per-type Data column encoding from spec §4.D:
//   - DATA, PROGRESSION: JSON encoding of the payload
//   - STATUS:            textual name of the Status variant
//   - LOG_INFO/LOG_ERROR: the string verbatim
func encodeData(typ frame.Type, data any) (string, error) {
	switch typ {
	case frame.TypeData, frame.TypeProgression:
		b, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("encode %s payload: %w", typ, err)
		}
		return string(b), nil
	case frame.TypeStatus:
		s, ok := data.(frame.Status)
		if !ok {
			return "", fmt.Errorf("status frame payload must be frame.Status, got %T", data)
		}
		return string(s), nil
	case frame.TypeLogInfo, frame.TypeLogError:
		s, ok := data.(string)
		if !ok {
			return "", fmt.Errorf("log frame payload must be string, got %T", data)
		}
		return s, nil
	default:
		return "", fmt.Errorf("unknown frame type %q", typ)
	}
}

func decodeData(typ frame.Type, raw string) (any, error) {
	switch typ {
	case frame.TypeData, frame.TypeProgression:
		var v any
		if raw == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		return v, nil
	case frame.TypeStatus:
		return frame.Status(raw), nil
	case frame.TypeLogInfo, frame.TypeLogError:
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", typ)
	}
}

func toRow(taskID int64, f frame.Frame) (frameRow, error) {
	data, err := encodeData(f.Type, f.Data)
	if err != nil {
		return frameRow{}, err
	}
	return frameRow{TaskID: taskID, Type: string(f.Type), Data: data, Time: f.Time}, nil
}

func fromRow(r frameRow) (frame.Frame, error) {
	data, err := decodeData(frame.Type(r.Type), r.Data)
	if err != nil {
		return frame.Frame{}, err
	}
	return frame.Frame{ID: r.ID, TaskID: r.TaskID, Type: frame.Type(r.Type), Data: data, Time: r.Time}, nil
}
