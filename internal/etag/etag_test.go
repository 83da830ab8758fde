package etag

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state struct {
	FillStatus int `json:"fillStatus"`
}

func TestStrong_IsQuotedSHA1OfJSON(t *testing.T) {
	got, err := Strong(state{FillStatus: 0})
	require.NoError(t, err)

	sum := sha1.Sum([]byte(`{"fillStatus":0}`))
	assert.Equal(t, `"`+hex.EncodeToString(sum[:])+`"`, got)
}

func TestStrong_Deterministic(t *testing.T) {
	a, err := Strong(state{FillStatus: 42})
	require.NoError(t, err)
	b, err := Strong(state{FillStatus: 42})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStrong_DiffersPerState(t *testing.T) {
	a, err := Strong(state{FillStatus: 1})
	require.NoError(t, err)
	b, err := Strong(state{FillStatus: 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStrong_SerializationError(t *testing.T) {
	_, err := Strong(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
