package storage

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerRequiresAPath(t *testing.T) {
	_, err := NewManager(nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestManagerFallbackOnlyOperation(t *testing.T) {
	fake := newTabularFake()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	fs := NewFallbackStore(srv.URL, "", 5*time.Second, zerolog.Nop())
	m, err := NewManager(nil, fs, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, m.Primary())

	res, err := m.CommitDetection(context.Background(), testRecord())
	require.NoError(t, err)
	assert.True(t, res.MessageCreated)
	assert.True(t, res.OrderCreated)

	assert.NoError(t, m.Healthy(context.Background()))
}
