package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tokenflow/engine/internal/ir"
)

func marshalMap(m map[string]any) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("store: marshal content: %w", err)
	}
	return string(data), nil
}

func marshalTopics(m map[string]float64) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("store: marshal topics: %w", err)
	}
	return string(data), nil
}

func marshalHistory(h []string) (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("store: marshal history: %w", err)
	}
	return string(data), nil
}

// unmarshalToken rebuilds a Token from its stored column values. A row that
// fails to decode is the caller's problem to log and drop, never to panic
// on — see TokenRepository.Load.
func unmarshalToken(traceID, sourceID, historyJSON, contentJSON, topicsJSON, createdAtJSON string) (ir.Token, error) {
	var history []string
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return ir.Token{}, fmt.Errorf("store: unmarshal history: %w", err)
	}

	var content map[string]any
	if err := json.Unmarshal([]byte(contentJSON), &content); err != nil {
		return ir.Token{}, fmt.Errorf("store: unmarshal content: %w", err)
	}

	var topics map[string]float64
	if err := json.Unmarshal([]byte(topicsJSON), &topics); err != nil {
		return ir.Token{}, fmt.Errorf("store: unmarshal topics: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtJSON)
	if err != nil {
		return ir.Token{}, fmt.Errorf("store: unmarshal created_at: %w", err)
	}

	return ir.Token{
		TraceID:   traceID,
		SourceID:  sourceID,
		History:   history,
		CreatedAt: createdAt,
		Content:   content,
		Topics:    topics,
	}, nil
}
