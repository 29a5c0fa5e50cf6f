package apiServer

import (
	"context"

	"github.com/i5heu/ouroboros-blocks/pkg/model"
	"github.com/i5heu/ouroboros-blocks/pkg/ownership"
)

// Service is the protocol surface the server exposes. *ownership.Protocol
// satisfies it.
type Service interface {
	MaxBlockSize() int
	Check(ctx context.Context, publicKey string) (bool, error)
	Groups(ctx context.Context, publicKey string) ([]string, error)
	Keys(ctx context.Context, publicKey, group string) ([]string, error)
	List(ctx context.Context, publicKey, group string) ([]model.Record, error)
	Get(ctx context.Context, publicKey, group, key string) (model.Record, error)
	Save(ctx context.Context, req ownership.SaveRequest) (model.Record, error)
	Delete(ctx context.Context, req ownership.DeleteRequest) error
}

// Request is the body of every route. Routes read only the fields they need.
type Request struct {
	PublicKey       string `json:"public_key"`
	Group           string `json:"data_group,omitempty"`
	Key             string `json:"data_key,omitempty"`
	Block           string `json:"data_block,omitempty"`
	Version         string `json:"data_version,omitempty"`
	Signature       string `json:"signature,omitempty"`
	SecretSignature string `json:"secret_signature,omitempty"`
}

// Record is the wire form of a stored record. Secret is only set on save
// responses.
type Record struct {
	PublicKey string `json:"public_key"`
	Group     string `json:"data_group"`
	Key       string `json:"data_key"`
	Block     string `json:"data_block"`
	Version   string `json:"data_version"`
	Signature string `json:"signature"`
	Secret    string `json:"secret,omitempty"`
}

type CheckResponse struct {
	Exists bool `json:"exists"`
}

type GroupsResponse struct {
	Groups []string `json:"groups"`
}

type KeysResponse struct {
	Keys []string `json:"keys"`
}

type DeleteResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Option func(*Server)

// RecordFromModel converts a stored record to its wire form. A zero secret is
// omitted.
func RecordFromModel(rec model.Record) Record {
	out := Record{
		PublicKey: rec.Owner.Hex(),
		Group:     rec.Group,
		Key:       rec.Key,
		Block:     string(rec.Block),
		Version:   rec.Version,
		Signature: rec.Signature.Hex(),
	}
	if !rec.Secret.IsZero() {
		out.Secret = rec.Secret.Hex()
	}
	return out
}
