// Package ownership decides whether a mutation of a public-key-addressed
// record is authorized. Creation is open to the first writer holding a valid
// content signature; every later update or delete must additionally prove
// possession of the record's current secret, which is rotated on each
// successful write.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/i5heu/ouroboros-blocks/pkg/codec"
	"github.com/i5heu/ouroboros-blocks/pkg/model"
	"github.com/i5heu/ouroboros-blocks/pkg/proof"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
)

// DefaultMaxBlockSize accepts every block shorter than 16 MiB.
const DefaultMaxBlockSize = 1<<24 - 1

// RecordStore is the durable storage the protocol runs against. Stores must
// be safe for concurrent use.
type RecordStore interface {
	Exists(ctx context.Context, owner codec.Point) (bool, error)
	Groups(ctx context.Context, owner codec.Point) ([]string, error)
	Keys(ctx context.Context, owner codec.Point, group string) ([]string, error)
	List(ctx context.Context, owner codec.Point, group string) ([]model.Record, error)
	Get(ctx context.Context, owner codec.Point, group, key string) (model.Record, error)
	Insert(ctx context.Context, rec model.Record) error
	// Update and Delete apply only while the stored secret equals expected
	// and return model.ErrSecretMismatch otherwise.
	Update(
		ctx context.Context,
		id string,
		expected secret.Secret,
		block []byte,
		version string,
		signature codec.Pair,
		next secret.Secret,
	) error
	Delete(ctx context.Context, id string, expected secret.Secret) error
}

// SignatureVerifier checks an ECDSA signature.
type SignatureVerifier interface {
	Verify(owner codec.Point, message []byte, sig codec.Pair) bool
}

// SecretGenerator mints new record secrets.
type SecretGenerator interface {
	Generate() (secret.Secret, error)
}

// SaveRequest is a create-or-update of one record. All cryptographic values
// are fixed-width hex. An empty SecretSignature means none was supplied.
type SaveRequest struct {
	PublicKey       string
	Group           string
	Key             string
	Block           []byte
	Version         string
	Signature       string
	SecretSignature string
}

// DeleteRequest removes one record.
type DeleteRequest struct {
	PublicKey       string
	Group           string
	Key             string
	SecretSignature string
}

// Protocol runs the ownership-proof state machine on top of a RecordStore.
type Protocol struct {
	store        RecordStore
	verifier     SignatureVerifier
	secrets      SecretGenerator
	maxBlockSize int
	log          *slog.Logger
	locks        *keyLocks
	newID        func() string
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithVerifier replaces the secp256k1 verifier.
func WithVerifier(v SignatureVerifier) Option { // A
	return func(p *Protocol) {
		if v != nil {
			p.verifier = v
		}
	}
}

// WithSecretGenerator replaces the crypto/rand backed secret manager.
func WithSecretGenerator(g SecretGenerator) Option { // A
	return func(p *Protocol) {
		if g != nil {
			p.secrets = g
		}
	}
}

// WithMaxBlockSize sets the largest accepted block in bytes.
func WithMaxBlockSize(n int) Option { // A
	return func(p *Protocol) {
		if n > 0 {
			p.maxBlockSize = n
		}
	}
}

// WithLogger sets the logger used for denials and mutations.
func WithLogger(logger *slog.Logger) Option { // A
	return func(p *Protocol) {
		if logger != nil {
			p.log = logger
		}
	}
}

// New builds a Protocol over store.
func New(store RecordStore, opts ...Option) *Protocol { // A
	p := &Protocol{
		store:        store,
		verifier:     proof.NewVerifier(),
		secrets:      secret.NewManager(),
		maxBlockSize: DefaultMaxBlockSize,
		log:          slog.Default(),
		locks:        newKeyLocks(),
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxBlockSize returns the configured block size limit.
func (p *Protocol) MaxBlockSize() int { // A
	return p.maxBlockSize
}

// Check reports whether owner has stored anything.
func (p *Protocol) Check(ctx context.Context, publicKey string) (bool, error) { // A
	owner, err := codec.DecodePoint(publicKey)
	if err != nil {
		return false, err
	}
	ok, err := p.store.Exists(ctx, owner)
	if err != nil {
		return false, storageErr("check owner", err)
	}
	return ok, nil
}

// Groups lists the groups owner has records in.
func (p *Protocol) Groups(ctx context.Context, publicKey string) ([]string, error) { // A
	owner, err := codec.DecodePoint(publicKey)
	if err != nil {
		return nil, err
	}
	groups, err := p.store.Groups(ctx, owner)
	if err != nil {
		return nil, storageErr("list groups", err)
	}
	return groups, nil
}

// Keys lists the keys of one group.
func (p *Protocol) Keys( // A
	ctx context.Context,
	publicKey, group string,
) ([]string, error) {
	owner, err := codec.DecodePoint(publicKey)
	if err != nil {
		return nil, err
	}
	keys, err := p.store.Keys(ctx, owner, group)
	if err != nil {
		return nil, storageErr("list keys", err)
	}
	return keys, nil
}

// List returns every record of one group with secrets removed.
func (p *Protocol) List( // A
	ctx context.Context,
	publicKey, group string,
) ([]model.Record, error) {
	owner, err := codec.DecodePoint(publicKey)
	if err != nil {
		return nil, err
	}
	recs, err := p.store.List(ctx, owner, group)
	if err != nil {
		return nil, storageErr("list records", err)
	}
	out := make([]model.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.WithoutSecret())
	}
	return out, nil
}

// Get returns one record with its secret removed.
func (p *Protocol) Get( // A
	ctx context.Context,
	publicKey, group, key string,
) (model.Record, error) {
	owner, err := codec.DecodePoint(publicKey)
	if err != nil {
		return model.Record{}, err
	}
	rec, err := p.lookup(ctx, owner, group, key)
	if err != nil {
		return model.Record{}, err
	}
	return rec.WithoutSecret(), nil
}

// Save creates the record if the slot is free, otherwise updates it after
// checking the secret proof. The returned record carries the new secret.
func (p *Protocol) Save(ctx context.Context, req SaveRequest) (model.Record, error) { // A
	owner, err := codec.DecodePoint(req.PublicKey)
	if err != nil {
		return model.Record{}, fmt.Errorf("public key: %w", err)
	}
	signature, err := codec.DecodePair(req.Signature)
	if err != nil {
		return model.Record{}, fmt.Errorf("signature: %w", err)
	}
	secretSig, hasSecretSig, err := decodeOptionalPair(req.SecretSignature)
	if err != nil {
		return model.Record{}, fmt.Errorf("secret signature: %w", err)
	}

	if len(req.Block) > p.maxBlockSize {
		return model.Record{}, fmt.Errorf(
			"%w: %d bytes, limit %d",
			ErrPayloadTooLarge, len(req.Block), p.maxBlockSize,
		)
	}

	msg := proof.ContentMessage(req.Group, req.Key, req.Block, req.Version)
	if !p.verifier.Verify(owner, msg[:], signature) {
		p.deny("save", "content signature invalid", owner, req.Group, req.Key)
		return model.Record{}, ErrForbidden
	}

	unlock := p.locks.lock(lockID(owner, req.Group, req.Key))
	defer unlock()

	existing, err := p.lookup(ctx, owner, req.Group, req.Key)
	switch {
	case errors.Is(err, ErrNotFound):
		return p.create(ctx, owner, req, signature)
	case err != nil:
		return model.Record{}, err
	}

	if !hasSecretSig {
		p.deny("save", "secret signature missing", owner, req.Group, req.Key)
		return model.Record{}, ErrForbidden
	}
	if !p.verifier.Verify(owner, proof.SecretMessage(existing.Secret), secretSig) {
		p.deny("save", "secret signature invalid", owner, req.Group, req.Key)
		return model.Record{}, ErrForbidden
	}

	next, err := p.secrets.Generate()
	if err != nil {
		return model.Record{}, fmt.Errorf("mint secret: %w", err)
	}
	err = p.store.Update(ctx, existing.ID, existing.Secret, req.Block, req.Version, signature, next)
	if errors.Is(err, model.ErrRecordNotFound) {
		return model.Record{}, ErrNotFound
	}
	if errors.Is(err, model.ErrSecretMismatch) {
		p.deny("save", "secret rotated concurrently", owner, req.Group, req.Key)
		return model.Record{}, ErrForbidden
	}
	if err != nil {
		return model.Record{}, storageErr("update record", err)
	}

	existing.Block = req.Block
	existing.Version = req.Version
	existing.Signature = signature
	existing.Secret = next
	p.log.Debug("record updated",
		"owner", owner.Hex(), "group", req.Group, "key", req.Key)
	return existing, nil
}

func (p *Protocol) create( // A
	ctx context.Context,
	owner codec.Point,
	req SaveRequest,
	signature codec.Pair,
) (model.Record, error) {
	first, err := p.secrets.Generate()
	if err != nil {
		return model.Record{}, fmt.Errorf("mint secret: %w", err)
	}
	rec := model.Record{
		ID:        p.newID(),
		Owner:     owner,
		Group:     req.Group,
		Key:       req.Key,
		Block:     req.Block,
		Version:   req.Version,
		Signature: signature,
		Secret:    first,
	}
	err = p.store.Insert(ctx, rec)
	if errors.Is(err, model.ErrRecordExists) {
		// Claimed by a writer outside this process; treat as an update
		// without proof.
		p.deny("save", "slot claimed concurrently", owner, req.Group, req.Key)
		return model.Record{}, ErrForbidden
	}
	if err != nil {
		return model.Record{}, storageErr("insert record", err)
	}
	p.log.Debug("record created",
		"owner", owner.Hex(), "group", req.Group, "key", req.Key)
	return rec, nil
}

// Delete removes a record after checking the secret proof.
func (p *Protocol) Delete(ctx context.Context, req DeleteRequest) error { // A
	owner, err := codec.DecodePoint(req.PublicKey)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	secretSig, hasSecretSig, err := decodeOptionalPair(req.SecretSignature)
	if err != nil {
		return fmt.Errorf("secret signature: %w", err)
	}

	unlock := p.locks.lock(lockID(owner, req.Group, req.Key))
	defer unlock()

	existing, err := p.lookup(ctx, owner, req.Group, req.Key)
	if err != nil {
		return err
	}
	if !hasSecretSig ||
		!p.verifier.Verify(owner, proof.SecretMessage(existing.Secret), secretSig) {
		p.deny("delete", "secret proof failed", owner, req.Group, req.Key)
		return ErrForbidden
	}

	err = p.store.Delete(ctx, existing.ID, existing.Secret)
	if errors.Is(err, model.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, model.ErrSecretMismatch) {
		p.deny("delete", "secret rotated concurrently", owner, req.Group, req.Key)
		return ErrForbidden
	}
	if err != nil {
		return storageErr("delete record", err)
	}
	p.log.Debug("record deleted",
		"owner", owner.Hex(), "group", req.Group, "key", req.Key)
	return nil
}

func (p *Protocol) lookup( // A
	ctx context.Context,
	owner codec.Point,
	group, key string,
) (model.Record, error) {
	rec, err := p.store.Get(ctx, owner, group, key)
	if errors.Is(err, model.ErrRecordNotFound) {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		return model.Record{}, storageErr("lookup record", err)
	}
	return rec, nil
}

func (p *Protocol) deny( // A
	op, reason string,
	owner codec.Point,
	group, key string,
) {
	p.log.Debug("request denied",
		"op", op, "reason", reason,
		"owner", owner.Hex(), "group", group, "key", key)
}

func decodeOptionalPair(s string) (codec.Pair, bool, error) { // A
	if s == "" {
		return codec.Pair{}, false, nil
	}
	pair, err := codec.DecodePair(s)
	if err != nil {
		return codec.Pair{}, false, err
	}
	return pair, true, nil
}

func storageErr(op string, err error) error { // A
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func lockID(owner codec.Point, group, key string) string { // A
	return owner.Hex() + "/" + strconv.Itoa(len(group)) + ":" + group + "/" + key
}
