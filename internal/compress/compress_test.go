package compress

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	obj := map[string]any{
		"url":    "https://api.example.com/repos/acme/widgets/pulls?page=1",
		"status": float64(200),
		"items":  []any{"a", "b", "c"},
	}
	raw, err := json.Marshal(obj)
	require.NoError(t, err)

	encoded, err := Encode(string(raw))
	require.NoError(t, err)
	assert.True(t, IsCompressed(encoded))

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(decoded), &got))
	assert.Equal(t, obj, got)
}

func TestDecode_LegacyPlainBlob(t *testing.T) {
	plain := `{"entries":{}}`
	got, err := Decode(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecode_CorruptBlob(t *testing.T) {
	_, err := Decode(Prefix + "!!not base64!!")
	assert.Error(t, err)

	_, err = Decode(Prefix + "aGVsbG8=") // valid base64, not gzip
	assert.Error(t, err)
}

func TestEncode_ShrinksRepetitiveInput(t *testing.T) {
	big := strings.Repeat(`{"login":"octocat","state":"APPROVED"},`, 200)
	encoded, err := Encode(big)
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(big))
}
