package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"doc-intake-service/internal/entity"
)

var ErrUnknownTask = errors.New("unknown task name")

var taskSchemas = map[entity.TaskName]map[string]any{
	entity.TaskProcessDocument: {
		"type":     "object",
		"required": []string{"job_id", "file_key"},
		"properties": map[string]any{
			"job_id":     map[string]any{"type": "string", "format": "uuid"},
			"file_key":   map[string]any{"type": "string", "minLength": 1},
			"language":   map[string]any{"type": "string"},
			"ocr_engine": map[string]any{"type": "string", "enum": []string{"", "tesseract", "vision"}},
		},
		"additionalProperties": false,
	},
}

var (
	compileOnce sync.Once
	compiled    map[entity.TaskName]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	compiled = make(map[entity.TaskName]*jsonschema.Schema, len(taskSchemas))
	for name, raw := range taskSchemas {
		b, err := json.Marshal(raw)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema %s: %w", name, err)
			return
		}
		c := jsonschema.NewCompiler()
		c.AssertFormat = true
		url := string(name) + ".json"
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema %s: %w", name, err)
			return
		}
		s, err := c.Compile(url)
		if err != nil {
			compileErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		compiled[name] = s
	}
}

// ValidatePayload checks payload against the schema registered for name.
func ValidatePayload(name entity.TaskName, payload []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	s, ok := compiled[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("%w: payload is not json: %v", ErrInvalidInput, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidInput, name, err)
	}
	return nil
}

func encodeTask(name entity.TaskName, payload any) (json.RawMessage, error) {
	var (
		b   []byte
		err error
	)
	switch p := payload.(type) {
	case json.RawMessage:
		b = p
	case []byte:
		b = p
	default:
		b, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", name, err)
		}
	}
	if err := ValidatePayload(name, b); err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
