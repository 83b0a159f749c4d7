package hash

import (
	"crypto"
	"encoding/json"
	"testing"

	"github.com/grafana/treeforge/protocol/object"
	"github.com/stretchr/testify/require"
)

func TestObject(t *testing.T) {
	tests := []struct {
		name    string
		algo    crypto.Hash
		objType object.Type
		data    []byte
		want    string
		wantErr error
	}{
		{
			name:    "sha1 blob",
			algo:    crypto.SHA1,
			objType: object.TypeBlob,
			data:    []byte("test content"),
			want:    "08cf6101416f0ce0dda3c80e627f333854c4085c",
		},
		{
			name:    "sha1 empty blob",
			algo:    crypto.SHA1,
			objType: object.TypeBlob,
			data:    []byte{},
			want:    "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391",
		},
		{
			name:    "unlinked algorithm",
			algo:    crypto.MD4,
			objType: object.TypeBlob,
			data:    []byte("test content"),
			wantErr: ErrUnlinkedAlgorithm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Object(tt.algo, tt.objType, tt.data)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestFromHex(t *testing.T) {
	t.Run("empty string is zero", func(t *testing.T) {
		h, err := FromHex("")
		require.NoError(t, err)
		require.True(t, h.IsZero())
	})

	t.Run("sha1 round trip", func(t *testing.T) {
		h, err := FromHex("08cf6101416f0ce0dda3c80e627f333854c4085c")
		require.NoError(t, err)
		require.Len(t, h, 20)
		require.Equal(t, "08cf6101416f0ce0dda3c80e627f333854c4085c", h.String())
	})

	t.Run("rejects short ids", func(t *testing.T) {
		_, err := FromHex("08cf6101")
		require.ErrorContains(t, err, "invalid hash length")
	})

	t.Run("rejects non hex", func(t *testing.T) {
		_, err := FromHex("zzcf6101416f0ce0dda3c80e627f333854c4085c")
		require.Error(t, err)
	})

	t.Run("must panics", func(t *testing.T) {
		require.Panics(t, func() { MustFromHex("nope") })
	})
}

func TestHash_JSON(t *testing.T) {
	type payload struct {
		SHA  Hash `json:"sha"`
		Base Hash `json:"base_tree,omitempty"`
	}

	out, err := json.Marshal(payload{SHA: MustFromHex("08cf6101416f0ce0dda3c80e627f333854c4085c")})
	require.NoError(t, err)
	require.JSONEq(t, `{"sha":"08cf6101416f0ce0dda3c80e627f333854c4085c"}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal(out, &in))
	require.True(t, in.SHA.Is(MustFromHex("08cf6101416f0ce0dda3c80e627f333854c4085c")))

	require.Error(t, json.Unmarshal([]byte(`{"sha":"abc"}`), &in))
}
