package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuongbtq/render-studio/internal/studio/storage"
	"github.com/google/uuid"
)

func DecodeTransitionCursor(cursorStr string) (*storage.TransitionCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	seq, err := strconv.Atoi(parts[0])
	if err != nil || seq < 1 {
		return nil, fmt.Errorf("invalid seq in cursor: %q", parts[0])
	}

	if _, err := uuid.Parse(parts[1]); err != nil {
		return nil, fmt.Errorf("invalid event id in cursor: %w", err)
	}

	return &storage.TransitionCursor{
		Seq:     seq,
		EventID: parts[1],
	}, nil
}

func EncodeTransitionCursor(cursor *storage.TransitionCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.Seq, cursor.EventID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
