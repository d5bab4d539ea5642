package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/web3tea/binlog-sentinel/capturer"
)

// LoadPosition returns the position saved under key. ok is false when none
// was saved yet.
func LoadPosition(ctx context.Context, s Store, key string) (pos capturer.Position, ok bool, err error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return capturer.Position{}, false, nil
	}
	if err != nil {
		return capturer.Position{}, false, err
	}
	if err := json.Unmarshal(data, &pos); err != nil {
		return capturer.Position{}, false, fmt.Errorf("decode position %q: %w", key, err)
	}
	return pos, true, nil
}

func SavePosition(ctx context.Context, s Store, key string, pos capturer.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, data)
}
