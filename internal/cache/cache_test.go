package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tally/internal/config"
)

func TestNoopStore(t *testing.T) {
	s := NewStore(config.Config{}, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, s.Delete(ctx, "k"))
}

func TestGetJSONMiss(t *testing.T) {
	var dst map[string]int
	err := GetJSON(context.Background(), noopStore{}, "report", &dst)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewClientNoop(t *testing.T) {
	client, err := NewClient(nil, config.Config{Cache: config.Cache{Driver: "noop"}}, nil)
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = NewClient(nil, config.Config{Cache: config.Cache{Driver: "memcached"}}, nil)
	assert.Error(t, err)
}
