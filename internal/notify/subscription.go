// Package notify delivers escalation alerts to operators over web push.
// Subscriptions are registered through the status server and stored as
// YAML documents alongside the agent state files.
package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johnhkchen/my-little-soda-sub002/pkg/cerr"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

type Subscription struct {
	ID        string    `yaml:"id"`
	Endpoint  string    `yaml:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key"`
	AuthKey   string    `yaml:"auth_key"`
	CreatedAt time.Time `yaml:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

const subscriptionsPrefix = "subscriptions"

// YAMLRepository stores one YAML file per subscription.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func subscriptionPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", subscriptionsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, s *Subscription) error {
	exists, err := r.storage.Exists(ctx, subscriptionPath(s.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("subscription", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "subscription already exists", nil)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to marshal subscription", err)
	}
	if err := r.storage.Write(ctx, subscriptionPath(s.ID), data); err != nil {
		return cerr.WrapStorageWriteError("subscription", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*Subscription, error) {
	data, err := r.storage.Read(ctx, subscriptionPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("subscription", err)
	}
	var s Subscription
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to unmarshal subscription", err)
	}
	return &s, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*Subscription, error) {
	paths, err := r.storage.List(ctx, subscriptionsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("subscriptions", err)
	}

	sort.Strings(paths)

	var all []*Subscription
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var s Subscription
		if err := yaml.Unmarshal(data, &s); err != nil {
			continue
		}
		all = append(all, &s)
	}
	return all, nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, subscriptionPath(id)); err != nil {
		return cerr.WrapStorageDeleteError("subscription", err)
	}
	return nil
}

func (r *YAMLRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	all, err := r.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range all {
		if s.Endpoint == endpoint {
			return r.Delete(ctx, s.ID)
		}
	}
	return cerr.NewError(cerr.NotFound, "subscription not found", nil)
}
