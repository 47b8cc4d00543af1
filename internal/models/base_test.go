package models

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID(t *testing.T) {
	id := NewULID()
	assert.False(t, id.IsZero(), "NewULID should generate a non-zero ID")

	id2 := NewULID()
	assert.NotEqual(t, id, id2, "two NewULID calls should produce different IDs")
}

func TestNewULID_Monotonic(t *testing.T) {
	prev := NewULID()
	for i := 0; i < 1000; i++ {
		next := NewULID()
		require.Equal(t, 1, next.Compare(prev), "ULIDs must strictly increase")
		prev = next
	}
}

func TestNewULID_Concurrent(t *testing.T) {
	const n = 200
	var (
		mu   sync.Mutex
		seen = make(map[ULID]struct{}, n)
		wg   sync.WaitGroup
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := NewULID()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}

func TestParseULID(t *testing.T) {
	t.Run("valid ULID string", func(t *testing.T) {
		original := NewULID()
		parsed, err := ParseULID(original.String())
		require.NoError(t, err)
		assert.Equal(t, original, parsed)
	})

	t.Run("invalid ULID string", func(t *testing.T) {
		_, err := ParseULID("not-a-valid-ulid")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid ULID")
	})

	t.Run("empty string", func(t *testing.T) {
		_, err := ParseULID("")
		assert.Error(t, err)
	})
}

func TestULID_Value(t *testing.T) {
	t.Run("zero ULID returns nil", func(t *testing.T) {
		var zero ULID
		val, err := zero.Value()
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("non-zero ULID returns string", func(t *testing.T) {
		id := NewULID()
		val, err := id.Value()
		require.NoError(t, err)
		assert.Equal(t, id.String(), val)
	})
}

func TestULID_Scan(t *testing.T) {
	validID := NewULID()
	validStr := validID.String()

	tests := []struct {
		name      string
		input     any
		expected  ULID
		expectErr bool
	}{
		{"nil sets zero", nil, ULID{}, false},
		{"valid string", validStr, validID, false},
		{"empty string sets zero", "", ULID{}, false},
		{"valid []byte", []byte(validStr), validID, false},
		{"invalid string", "bad-ulid", ULID{}, true},
		{"unsupported type int", 12345, ULID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u ULID
			err := u.Scan(tt.input)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, u)
			}
		})
	}
}

func TestULID_JSON(t *testing.T) {
	t.Run("zero ULID marshals to null", func(t *testing.T) {
		var zero ULID
		data, err := json.Marshal(zero)
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("null unmarshals to zero", func(t *testing.T) {
		var u ULID
		require.NoError(t, json.Unmarshal([]byte("null"), &u))
		assert.True(t, u.IsZero())
	})

	t.Run("non-quoted value errors", func(t *testing.T) {
		var u ULID
		err := json.Unmarshal([]byte("12345"), &u)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid ULID JSON")
	})

	t.Run("valid ULID unmarshals", func(t *testing.T) {
		id := NewULID()
		var parsed ULID
		require.NoError(t, json.Unmarshal([]byte(`"`+id.String()+`"`), &parsed))
		assert.Equal(t, id, parsed)
	})
}
