package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := &storage.Cursor{
		CreatedAt: time.Date(2026, 4, 1, 8, 0, 0, 123456000, time.UTC),
		ID:        "5f0c6a9e-2f0e-4a43-9d55-3c1f3f2f7c11",
	}

	decoded, err := DecodeCursor(EncodeCursor(cursor))
	require.NoError(t, err)
	assert.Equal(t, cursor, decoded)
}

func TestDecodeCursor(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantNil bool
		wantErr bool
	}{
		{name: "empty", input: "", wantNil: true},
		{name: "not base64", input: "***", wantErr: true},
		{name: "no separator", input: base64.RawURLEncoding.EncodeToString([]byte("12345")), wantErr: true},
		{name: "bad timestamp", input: base64.RawURLEncoding.EncodeToString([]byte("abc|id")), wantErr: true},
		{name: "missing id", input: base64.RawURLEncoding.EncodeToString([]byte("12345|")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeCursor(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, cursor)
			}
		})
	}
}
