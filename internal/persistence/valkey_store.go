package persistence

import (
	"context"
	"encoding/json"

	"stage-manager/internal/stage"

	"github.com/valkey-io/valkey-go"
)

// ValkeyStore keeps each list as a JSON string under "stage:<scope>:<owner>".
type ValkeyStore struct {
	client valkey.Client
}

func NewValkeyStore(addr string) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, err
	}
	return &ValkeyStore{client: client}, nil
}

func (s *ValkeyStore) Close() {
	s.client.Close()
}

func (s *ValkeyStore) Get(ctx context.Context, scope stage.Scope, owner string) ([]stage.Serialized, error) {
	key := Key{Scope: scope, Owner: owner}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(key.String()).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return []stage.Serialized{}, nil
	}
	if err != nil {
		return nil, err
	}
	objects := make([]stage.Serialized, 0)
	if err := json.Unmarshal([]byte(raw), &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func (s *ValkeyStore) Set(ctx context.Context, scope stage.Scope, owner string, objects []stage.Serialized) error {
	key := Key{Scope: scope, Owner: owner}
	if err := key.Validate(); err != nil {
		return err
	}
	if objects == nil {
		objects = []stage.Serialized{}
	}
	data, err := json.Marshal(objects)
	if err != nil {
		return err
	}
	return s.client.Do(ctx, s.client.B().Set().Key(key.String()).Value(string(data)).Build()).Error()
}
