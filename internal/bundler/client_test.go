package bundler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_New(t *testing.T) {
	ctx := context.Background()
	urls := map[string]string{"0x539": "http://localhost:3000/rpc"}

	t.Run("fails for a chain id absent from the table", func(t *testing.T) {
		_, err := New(ctx, "0x1", urls)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrChainNotSupported)
	})

	t.Run("fails for a configured but empty url", func(t *testing.T) {
		_, err := New(ctx, "0x5", map[string]string{"0x5": ""})
		assert.ErrorIs(t, err, ErrChainNotSupported)
	})

	t.Run("succeeds for a configured chain id", func(t *testing.T) {
		client, err := New(ctx, "0x539", urls)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, "http://localhost:3000/rpc", client.URL())
		assert.EqualValues(t, 1337, client.ChainID().Int64())
		assert.Equal(t, DefaultEntryPoint, client.EntryPoint())
		assert.Equal(t, DefaultAccountFactory, client.AccountFactory())
	})
}

func TestClient_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards method and params verbatim", func(t *testing.T) {
		var gotMethod string
		var gotParams []interface{}

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID     json.RawMessage `json:"id"`
				Method string          `json:"method"`
				Params []interface{}   `json:"params"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			gotMethod = req.Method
			gotParams = req.Params

			w.Header().Set("Content-Type", "application/json")
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": json.RawMessage(req.ID), "result": "0x539"}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer srv.Close()

		client, err := New(ctx, "0x539", map[string]string{"0x539": srv.URL})
		require.NoError(t, err)
		defer client.Close()

		result, err := client.Send(ctx, MethodChainID)
		require.NoError(t, err)
		assert.JSONEq(t, `"0x539"`, string(result))
		assert.Equal(t, MethodChainID, gotMethod)
		assert.Empty(t, gotParams)
	})

	t.Run("propagates the bundler's error payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID json.RawMessage `json:"id"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.Header().Set("Content-Type", "application/json")
			resp := map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      json.RawMessage(req.ID),
				"error":   map[string]interface{}{"code": -32000, "message": "invalid user operation"},
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer srv.Close()

		client, err := New(ctx, "0x539", map[string]string{"0x539": srv.URL})
		require.NoError(t, err)
		defer client.Close()

		_, err = client.Send(ctx, MethodSendUserOperation, map[string]string{}, DefaultEntryPoint.Hex())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid user operation")
	})
}

func TestIsBundlerMethod(t *testing.T) {
	assert.True(t, IsBundlerMethod(MethodSendUserOperation))
	assert.True(t, IsBundlerMethod(MethodDebugDumpReputation))
	assert.False(t, IsBundlerMethod("keyring_listAccounts"))
}
