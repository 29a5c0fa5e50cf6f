package ownership

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/i5heu/ouroboros-blocks/pkg/codec"
	"github.com/i5heu/ouroboros-blocks/pkg/model"
	"github.com/i5heu/ouroboros-blocks/pkg/proof"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
	"github.com/stretchr/testify/require"
)

// memStore is a map backed RecordStore with failure injection.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]model.Record
	fail    error
	writes  int
	inserts int
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]model.Record)}
}

func (m *memStore) find(owner codec.Point, group, key string) (model.Record, bool) {
	for _, rec := range m.byID {
		if rec.Owner == owner && rec.Group == group && rec.Key == key {
			return rec, true
		}
	}
	return model.Record{}, false
}

func (m *memStore) Exists(_ context.Context, owner codec.Point) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	for _, rec := range m.byID {
		if rec.Owner == owner {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Groups(_ context.Context, owner codec.Point) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	set := map[string]struct{}{}
	for _, rec := range m.byID {
		if rec.Owner == owner {
			set[rec.Group] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (m *memStore) Keys(_ context.Context, owner codec.Point, group string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	set := map[string]struct{}{}
	for _, rec := range m.byID {
		if rec.Owner == owner && rec.Group == group {
			set[rec.Key] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (m *memStore) List(_ context.Context, owner codec.Point, group string) ([]model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	var out []model.Record
	for _, rec := range m.byID {
		if rec.Owner == owner && rec.Group == group {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) Get(_ context.Context, owner codec.Point, group, key string) (model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return model.Record{}, m.fail
	}
	rec, ok := m.find(owner, group, key)
	if !ok {
		return model.Record{}, model.ErrRecordNotFound
	}
	return rec, nil
}

func (m *memStore) Insert(_ context.Context, rec model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if _, ok := m.find(rec.Owner, rec.Group, rec.Key); ok {
		return model.ErrRecordExists
	}
	m.byID[rec.ID] = rec
	m.writes++
	m.inserts++
	return nil
}

func (m *memStore) Update(
	_ context.Context,
	id string,
	expected secret.Secret,
	block []byte,
	version string,
	signature codec.Pair,
	next secret.Secret,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	rec, ok := m.byID[id]
	if !ok {
		return model.ErrRecordNotFound
	}
	if !rec.Secret.Equal(expected) {
		return model.ErrSecretMismatch
	}
	rec.Block = block
	rec.Version = version
	rec.Signature = signature
	rec.Secret = next
	m.byID[id] = rec
	m.writes++
	return nil
}

func (m *memStore) Delete(_ context.Context, id string, expected secret.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	rec, ok := m.byID[id]
	if !ok {
		return model.ErrRecordNotFound
	}
	if !rec.Secret.Equal(expected) {
		return model.ErrSecretMismatch
	}
	delete(m.byID, id)
	m.writes++
	return nil
}

func (m *memStore) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// testOwner bundles a key pair with request builders.
type testOwner struct {
	t      *testing.T
	signer *proof.Signer
}

func newTestOwner(t *testing.T) *testOwner {
	t.Helper()
	s, err := proof.GenerateSigner()
	require.NoError(t, err)
	return &testOwner{t: t, signer: s}
}

func (o *testOwner) pub() string {
	return o.signer.PublicKey().Hex()
}

func (o *testOwner) saveReq(group, key, block, version string, prev *secret.Secret) SaveRequest {
	o.t.Helper()
	sig, err := o.signer.SignContent(group, key, []byte(block), version)
	require.NoError(o.t, err)
	req := SaveRequest{
		PublicKey: o.pub(),
		Group:     group,
		Key:       key,
		Block:     []byte(block),
		Version:   version,
		Signature: sig.Hex(),
	}
	if prev != nil {
		req.SecretSignature = o.secretSig(*prev)
	}
	return req
}

func (o *testOwner) deleteReq(group, key string, prev secret.Secret) DeleteRequest {
	return DeleteRequest{
		PublicKey:       o.pub(),
		Group:           group,
		Key:             key,
		SecretSignature: o.secretSig(prev),
	}
}

func (o *testOwner) secretSig(s secret.Secret) string {
	o.t.Helper()
	sig, err := o.signer.SignSecret(s)
	require.NoError(o.t, err)
	return sig.Hex()
}
