package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/i5heu/ouroboros-blocks/internal/recordStore/badgerStore"
	"github.com/i5heu/ouroboros-blocks/pkg/apiServer"
	"github.com/i5heu/ouroboros-blocks/pkg/ownership"
	"github.com/i5heu/ouroboros-blocks/pkg/proof"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) string {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	store, err := badgerStore.Open(badgerStore.StoreConfig{InMemory: true, Logger: quiet})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(apiServer.New(
		ownership.New(store, ownership.WithLogger(logger)),
		apiServer.WithLogger(logger),
	))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	s, err := proof.GenerateSigner()
	require.NoError(t, err)
	return New(url, s)
}

func TestClientScenario(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)
	c := newClient(t, url)

	exists, err := c.Check(ctx, c.PublicKey())
	require.NoError(t, err)
	assert.False(t, exists)

	first, err := c.Save(ctx, "notes", "todo", []byte("buy milk"), "1", secret.Secret{})
	require.NoError(t, err)
	s1, err := secret.Parse(first.Secret)
	require.NoError(t, err)

	second, err := c.Save(ctx, "notes", "todo", []byte("buy oat milk"), "2", s1)
	require.NoError(t, err)
	s2, err := secret.Parse(second.Secret)
	require.NoError(t, err)

	groups, err := c.Groups(ctx, c.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, groups)

	keys, err := c.Keys(ctx, c.PublicKey(), "notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"todo"}, keys)

	list, err := c.List(ctx, c.PublicKey(), "notes")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "buy oat milk", list[0].Block)

	err = c.Delete(ctx, "notes", "todo", s1)
	assert.ErrorIs(t, err, ownership.ErrForbidden)

	require.NoError(t, c.Delete(ctx, "notes", "todo", s2))

	_, err = c.Get(ctx, c.PublicKey(), "notes", "todo")
	assert.ErrorIs(t, err, ownership.ErrNotFound)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestReadersSeeNoSecret(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)
	owner := newClient(t, url)

	_, err := owner.Save(ctx, "g", "k", []byte("public"), "1", secret.Secret{})
	require.NoError(t, err)

	reader := New(url, nil)
	rec, err := reader.Get(ctx, owner.PublicKey(), "g", "k")
	require.NoError(t, err)
	assert.Equal(t, "public", rec.Block)
	assert.Empty(t, rec.Secret)
}

func TestOtherKeyCannotOverwrite(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)
	alice := newClient(t, url)
	mallory := newClient(t, url)

	created, err := alice.Save(ctx, "g", "k", []byte("mine"), "1", secret.Secret{})
	require.NoError(t, err)
	sec, err := secret.Parse(created.Secret)
	require.NoError(t, err)

	// Same group and key under another public key is a separate slot.
	_, err = mallory.Save(ctx, "g", "k", []byte("theirs"), "1", secret.Secret{})
	require.NoError(t, err)

	rec, err := alice.Get(ctx, alice.PublicKey(), "g", "k")
	require.NoError(t, err)
	assert.Equal(t, "mine", rec.Block)

	// Knowing alice's secret does not help without alice's key.
	err = mallory.Delete(ctx, "g", "k", sec)
	assert.ErrorIs(t, err, ownership.ErrForbidden)
}

func TestWriteGuards(t *testing.T) {
	ctx := context.Background()
	reader := New("http://127.0.0.1:1", nil)
	_, err := reader.Save(ctx, "g", "k", []byte("x"), "1", secret.Secret{})
	assert.ErrorIs(t, err, ErrNoSigner)
	assert.ErrorIs(t, reader.Delete(ctx, "g", "k", secret.Secret{}), ErrNoSigner)
	assert.Empty(t, reader.PublicKey())

	c := newClient(t, "http://127.0.0.1:1")
	_, err = c.Save(ctx, "g", "k", []byte{0xff, 0xfe}, "1", secret.Secret{})
	assert.ErrorIs(t, err, ErrBlockNotUTF8)
}

func TestMalformedMapsToSentinel(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)
	c := New(url, nil)
	_, err := c.Check(ctx, "not-a-key")
	assert.ErrorIs(t, err, ownership.ErrMalformedInput)
}
