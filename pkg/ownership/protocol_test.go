package ownership

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/i5heu/ouroboros-blocks/pkg/codec"
	"github.com/i5heu/ouroboros-blocks/pkg/model"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioCreateUpdateDelete(t *testing.T) { // A
	ctx := context.Background()
	store := newMemStore()
	p := New(store)
	owner := newTestOwner(t)

	exists, err := p.Check(ctx, owner.pub())
	require.NoError(t, err)
	assert.False(t, exists)

	first, err := p.Save(ctx, owner.saveReq("g", "k", "hello", "1", nil))
	require.NoError(t, err)
	s1 := first.Secret
	assert.False(t, s1.IsZero())
	assert.Equal(t, []byte("hello"), first.Block)

	exists, err = p.Check(ctx, owner.pub())
	require.NoError(t, err)
	assert.True(t, exists)

	second, err := p.Save(ctx, owner.saveReq("g", "k", "world", "2", &s1))
	require.NoError(t, err)
	s2 := second.Secret
	assert.NotEqual(t, s1, s2)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "2", second.Version)

	err = p.Delete(ctx, owner.deleteReq("g", "k", s1))
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, p.Delete(ctx, owner.deleteReq("g", "k", s2)))

	_, err = p.Get(ctx, owner.pub(), "g", "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateIsPermissionlessUpdateIsNot(t *testing.T) { // A
	ctx := context.Background()
	p := New(newMemStore())
	owner := newTestOwner(t)

	_, err := p.Save(ctx, owner.saveReq("G", "K", "B", "V", nil))
	require.NoError(t, err)

	_, err = p.Save(ctx, owner.saveReq("G", "K", "B2", "V2", nil))
	assert.ErrorIs(t, err, ErrForbidden)

	rec, err := p.Get(ctx, owner.pub(), "G", "K")
	require.NoError(t, err)
	assert.Equal(t, []byte("B"), rec.Block)
}

func TestSecretsAreFreshAcrossWrites(t *testing.T) { // A
	ctx := context.Background()
	p := New(newMemStore())
	owner := newTestOwner(t)

	seen := map[secret.Secret]bool{}
	var prev *secret.Secret
	for i := 0; i < 20; i++ {
		rec, err := p.Save(ctx, owner.saveReq("g", "k", "data", "v", prev))
		require.NoError(t, err)
		require.False(t, seen[rec.Secret], "secret reused on write %d", i)
		seen[rec.Secret] = true
		s := rec.Secret
		prev = &s
	}
}

func TestSecretRotationRejectsStaleProof(t *testing.T) { // A
	ctx := context.Background()
	p := New(newMemStore())
	owner := newTestOwner(t)

	first, err := p.Save(ctx, owner.saveReq("g", "k", "a", "1", nil))
	require.NoError(t, err)
	s1 := first.Secret

	second, err := p.Save(ctx, owner.saveReq("g", "k", "b", "2", &s1))
	require.NoError(t, err)
	assert.NotEqual(t, s1, second.Secret)

	_, err = p.Save(ctx, owner.saveReq("g", "k", "c", "3", &s1))
	assert.ErrorIs(t, err, ErrForbidden)

	s2 := second.Secret
	_, err = p.Save(ctx, owner.saveReq("g", "k", "c", "3", &s2))
	assert.NoError(t, err)
}

func TestSaveRejectsTamperedContent(t *testing.T) { // A
	ctx := context.Background()
	store := newMemStore()
	p := New(store)
	owner := newTestOwner(t)

	base := owner.saveReq("group", "key", "block", "version", nil)
	mutations := map[string]func(r *SaveRequest){
		"group":   func(r *SaveRequest) { r.Group = "groUp" },
		"key":     func(r *SaveRequest) { r.Key = "kez" },
		"block":   func(r *SaveRequest) { r.Block = []byte("blocK") },
		"version": func(r *SaveRequest) { r.Version = "versioN" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			_, err := p.Save(ctx, req)
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}
	assert.Equal(t, 0, store.writeCount())
}

func TestSaveRejectsForeignSignature(t *testing.T) { // A
	ctx := context.Background()
	p := New(newMemStore())
	alice := newTestOwner(t)
	mallory := newTestOwner(t)

	req := mallory.saveReq("g", "k", "x", "1", nil)
	req.PublicKey = alice.pub()
	_, err := p.Save(ctx, req)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateRejectsOtherOwnersSecretProof(t *testing.T) { // A
	ctx := context.Background()
	p := New(newMemStore())
	alice := newTestOwner(t)
	mallory := newTestOwner(t)

	rec, err := p.Save(ctx, alice.saveReq("g", "k", "x", "1", nil))
	require.NoError(t, err)

	req := alice.saveReq("g", "k", "y", "2", nil)
	req.SecretSignature = mallory.secretSig(rec.Secret)
	_, err = p.Save(ctx, req)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBlockSizeBoundary(t *testing.T) { // A
	ctx := context.Background()
	p := New(newMemStore(), WithMaxBlockSize(16))
	owner := newTestOwner(t)

	_, err := p.Save(ctx, owner.saveReq("g", "exact", strings.Repeat("a", 16), "1", nil))
	assert.NoError(t, err)

	_, err = p.Save(ctx, owner.saveReq("g", "over", strings.Repeat("a", 17), "1", nil))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDefaultMaxBlockSize(t *testing.T) { // A
	p := New(newMemStore())
	assert.Equal(t, 1<<24-1, p.MaxBlockSize())
}

func TestDeleteRequiresCurrentSecret(t *testing.T) { // A
	ctx := context.Background()
	p := New(newMemStore())
	owner := newTestOwner(t)

	r1, err := p.Save(ctx, owner.saveReq("g", "k", "1", "1", nil))
	require.NoError(t, err)
	s1 := r1.Secret
	r2, err := p.Save(ctx, owner.saveReq("g", "k", "2", "2", &s1))
	require.NoError(t, err)
	s2 := r2.Secret
	r3, err := p.Save(ctx, owner.saveReq("g", "k", "3", "3", &s2))
	require.NoError(t, err)

	assert.ErrorIs(t, p.Delete(ctx, owner.deleteReq("g", "k", s1)), ErrForbidden)
	assert.ErrorIs(t, p.Delete(ctx, owner.deleteReq("g", "k", s2)), ErrForbidden)

	missing := owner.deleteReq("g", "k", r3.Secret)
	missing.SecretSignature = ""
	assert.ErrorIs(t, p.Delete(ctx, missing), ErrForbidden)

	require.NoError(t, p.Delete(ctx, owner.deleteReq("g", "k", r3.Secret)))
	_, err = p.Get(ctx, owner.pub(), "g", "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingRecord(t *testing.T) { // A
	p := New(newMemStore())
	owner := newTestOwner(t)
	var s secret.Secret
	s[0] = 1

	err := p.Delete(context.Background(), owner.deleteReq("g", "nothing", s))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMalformedInput(t *testing.T) { // A
	ctx := context.Background()
	store := newMemStore()
	p := New(store)
	owner := newTestOwner(t)

	_, err := p.Check(ctx, "ABC")
	assert.ErrorIs(t, err, ErrMalformedInput)
	_, err = p.Groups(ctx, strings.Repeat("Z", codec.PointHexLen))
	assert.ErrorIs(t, err, ErrMalformedInput)
	_, err = p.Get(ctx, "", "g", "k")
	assert.ErrorIs(t, err, ErrMalformedInput)

	req := owner.saveReq("g", "k", "b", "v", nil)
	req.Signature = req.Signature[:10]
	_, err = p.Save(ctx, req)
	assert.ErrorIs(t, err, ErrMalformedInput)

	req = owner.saveReq("g", "k", "b", "v", nil)
	req.SecretSignature = "XYZ"
	_, err = p.Save(ctx, req)
	assert.ErrorIs(t, err, ErrMalformedInput)

	err = p.Delete(ctx, DeleteRequest{PublicKey: owner.pub(), SecretSignature: "00"})
	assert.ErrorIs(t, err, ErrMalformedInput)

	assert.Equal(t, 0, store.writeCount())
}

func TestReadsNeverExposeSecret(t *testing.T) { // A
	ctx := context.Background()
	p := New(newMemStore())
	owner := newTestOwner(t)

	_, err := p.Save(ctx, owner.saveReq("g", "a", "1", "1", nil))
	require.NoError(t, err)
	_, err = p.Save(ctx, owner.saveReq("g", "b", "2", "1", nil))
	require.NoError(t, err)
	_, err = p.Save(ctx, owner.saveReq("h", "c", "3", "1", nil))
	require.NoError(t, err)

	rec, err := p.Get(ctx, owner.pub(), "g", "a")
	require.NoError(t, err)
	assert.True(t, rec.Secret.IsZero())

	list, err := p.List(ctx, owner.pub(), "g")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, r := range list {
		assert.True(t, r.Secret.IsZero())
	}

	groups, err := p.Groups(ctx, owner.pub())
	require.NoError(t, err)
	assert.Equal(t, []string{"g", "h"}, groups)

	keys, err := p.Keys(ctx, owner.pub(), "g")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestStorageFailuresAreUnavailable(t *testing.T) { // A
	ctx := context.Background()
	store := newMemStore()
	p := New(store)
	owner := newTestOwner(t)

	rec, err := p.Save(ctx, owner.saveReq("g", "k", "1", "1", nil))
	require.NoError(t, err)

	store.setFail(errors.New("disk on fire"))

	_, err = p.Check(ctx, owner.pub())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	_, err = p.Groups(ctx, owner.pub())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	_, err = p.Keys(ctx, owner.pub(), "g")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	_, err = p.List(ctx, owner.pub(), "g")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	_, err = p.Get(ctx, owner.pub(), "g", "k")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	s := rec.Secret
	_, err = p.Save(ctx, owner.saveReq("g", "k", "2", "2", &s))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	err = p.Delete(ctx, owner.deleteReq("g", "k", s))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestChecksPrecedeStorage(t *testing.T) { // A
	ctx := context.Background()
	store := newMemStore()
	p := New(store, WithMaxBlockSize(4))
	owner := newTestOwner(t)

	store.setFail(errors.New("must not be reached"))

	_, err := p.Save(ctx, owner.saveReq("g", "k", "too long", "1", nil))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	bad := owner.saveReq("g", "k", "ok", "1", nil)
	bad.Version = "2"
	_, err = p.Save(ctx, bad)
	assert.ErrorIs(t, err, ErrForbidden)
}

type failingSecrets struct{}

func (failingSecrets) Generate() (secret.Secret, error) {
	return secret.Secret{}, errors.New("entropy exhausted")
}

func TestSecretFailureLeavesStoreUntouched(t *testing.T) { // A
	store := newMemStore()
	p := New(store, WithSecretGenerator(failingSecrets{}))
	owner := newTestOwner(t)

	_, err := p.Save(context.Background(), owner.saveReq("g", "k", "b", "v", nil))
	require.Error(t, err)
	assert.Equal(t, 0, store.writeCount())
}

func TestConcurrentUpdatesSingleWinner(t *testing.T) { // A
	ctx := context.Background()
	p := New(newMemStore())
	owner := newTestOwner(t)

	rec, err := p.Save(ctx, owner.saveReq("g", "k", "0", "0", nil))
	require.NoError(t, err)
	stale := rec.Secret

	const workers = 16
	reqs := make([]SaveRequest, workers)
	for i := range reqs {
		reqs[i] = owner.saveReq("g", "k", "racer", "1", &stale)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		forbidden int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(req SaveRequest) {
			defer wg.Done()
			_, err := p.Save(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrForbidden):
				forbidden++
			}
		}(reqs[i])
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, forbidden)
	assert.Equal(t, 0, p.locks.size())
}

func TestConcurrentCreatesSingleWinner(t *testing.T) { // A
	ctx := context.Background()
	store := newMemStore()
	p := New(store)
	owner := newTestOwner(t)

	const workers = 8
	req := owner.saveReq("g", "fresh", "x", "1", nil)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Save(ctx, req)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrForbidden)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, store.inserts)
}

func TestLockIDIsUnambiguous(t *testing.T) { // A
	owner := newTestOwner(t).signer.PublicKey()
	assert.NotEqual(t,
		lockID(owner, "a/b", "c"),
		lockID(owner, "a", "b/c"),
	)
}

// racingStore rotates the stored secret right after each Get, as a writer in
// another process sharing the database would.
type racingStore struct {
	*memStore
}

func (r racingStore) Get(ctx context.Context, owner codec.Point, group, key string) (model.Record, error) {
	rec, err := r.memStore.Get(ctx, owner, group, key)
	if err != nil {
		return rec, err
	}
	other, err := secret.NewManager().Generate()
	if err != nil {
		return model.Record{}, err
	}
	r.mu.Lock()
	stored := r.byID[rec.ID]
	stored.Secret = other
	r.byID[rec.ID] = stored
	r.mu.Unlock()
	return rec, nil
}

func TestWriteFailsWhenSecretRotatedElsewhere(t *testing.T) { // A
	ctx := context.Background()
	store := newMemStore()
	owner := newTestOwner(t)

	first, err := New(store).Save(ctx, owner.saveReq("g", "k", "a", "1", nil))
	require.NoError(t, err)
	s1 := first.Secret

	p := New(racingStore{memStore: store})
	writes := store.writeCount()

	_, err = p.Save(ctx, owner.saveReq("g", "k", "b", "2", &s1))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, p.Delete(ctx, owner.deleteReq("g", "k", s1)), ErrForbidden)
	assert.Equal(t, writes, store.writeCount())

	store.mu.Lock()
	rec, ok := store.find(first.Owner, "g", "k")
	store.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), rec.Block)
}
