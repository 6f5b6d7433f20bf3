package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *Document {
	doc := NewDocument()
	doc.Wallets["id-1"] = Wallet{
		Account: Account{
			ID:      "id-1",
			Name:    "Primary",
			Address: "0x49A9F0d4b66444C2C6b2d66eC27245E0D0e5e732",
			Methods: []string{"personal_sign"},
			Type:    "eip155:erc4337",
		},
		PrivateKey: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
	}
	doc.PendingRequests["r1"] = SigningRequest{
		ID:        "r1",
		AccountID: "id-1",
		Scope:     "eip155:1337",
		Method:    "personal_sign",
		Params:    []json.RawMessage{json.RawMessage(`"0x49A9"`), json.RawMessage(`"0x68656c6c6f"`)},
	}
	doc.RequestIDCounter = 7
	act := doc.ActivityFor("id-1")
	act.PendingUserOps["0x539"] = []string{"0xaaaa"}
	return doc
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("load before save returns default document", func(t *testing.T) {
		store := NewMemoryStore()
		doc, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, doc.Wallets)
		assert.Equal(t, DefaultBundlerURLs(), doc.BundlerURLs)
	})

	t.Run("round trips a document", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, sampleDocument()))

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Primary", loaded.Wallets["id-1"].Account.Name)
		assert.Equal(t, "personal_sign", loaded.PendingRequests["r1"].Method)
		assert.Equal(t, uint64(7), loaded.RequestIDCounter)
		assert.Equal(t, []string{"0xaaaa"}, loaded.Activity["id-1"].PendingUserOps["0x539"])
	})

	t.Run("load returns an independent copy", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, sampleDocument()))

		first, err := store.Load(ctx)
		require.NoError(t, err)
		delete(first.Wallets, "id-1")

		second, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Contains(t, second.Wallets, "id-1")
	})
}

func TestBadgerStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips a document across reopen", func(t *testing.T) {
		dir := t.TempDir()

		store, err := OpenBadger(dir)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, sampleDocument()))
		require.NoError(t, store.Close())

		store, err = OpenBadger(dir)
		require.NoError(t, err)
		defer store.Close()

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Primary", loaded.Wallets["id-1"].Account.Name)
		assert.Equal(t, uint64(7), loaded.RequestIDCounter)
	})

	t.Run("load on fresh database returns default document", func(t *testing.T) {
		store, err := OpenBadger(t.TempDir())
		require.NoError(t, err)
		defer store.Close()

		doc, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, doc.Wallets)
		assert.NotEmpty(t, doc.BundlerURLs)
	})
}
