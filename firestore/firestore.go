// Package firestore implements [chatbox.Storage] on Cloud Firestore. Each
// key is a document under users/<uid>/data holding a single value field.
package firestore

import (
	"context"
	"fmt"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/fwojciec/chatbox"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Interface compliance check.
var _ chatbox.Storage = (*Storage)(nil)

// Storage stores one user's keys.
type Storage struct {
	client *firestore.Client
	data   *firestore.CollectionRef
}

// Open creates a client for projectID scoped to the user uid. With
// FIRESTORE_EMULATOR_HOST set the client connects to the emulator.
func Open(ctx context.Context, projectID, uid string, opts ...option.ClientOption) (*Storage, error) {
	if uid == "" {
		return nil, fmt.Errorf("firestore: user id: %w", chatbox.ErrValidation)
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client: %w", err)
	}
	return New(client, uid), nil
}

// New wraps an existing client.
func New(client *firestore.Client, uid string) *Storage {
	return &Storage{
		client: client,
		data:   client.Collection("users").Doc(uid).Collection("data"),
	}
}

// Close closes the client.
func (s *Storage) Close() error {
	return s.client.Close()
}

type document struct {
	Value []byte `firestore:"value"`
}

// Document IDs must not contain slashes.
func docID(key string) string {
	return url.PathEscape(key)
}

// Get returns the value stored under key, or chatbox.ErrNotFound.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := s.data.Doc(docID(key)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("firestore: key %q: %w", key, chatbox.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("firestore: get: %w", err)
	}
	var doc document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore: decode %q: %w", key, err)
	}
	return doc.Value, nil
}

// Set replaces the document for key.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.data.Doc(docID(key)).Set(ctx, document{Value: value}); err != nil {
		return fmt.Errorf("firestore: set: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if _, err := s.data.Doc(docID(key)).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore: delete: %w", err)
	}
	return nil
}

// GetAll returns every document of the user. Document IDs that do not
// unescape to a key are skipped.
func (s *Storage) GetAll(ctx context.Context) (map[string][]byte, error) {
	all := make(map[string][]byte)
	iter := s.data.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: get all: %w", err)
		}
		key, err := url.PathUnescape(snap.Ref.ID)
		if err != nil {
			continue
		}
		var doc document
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore: decode %q: %w", key, err)
		}
		all[key] = doc.Value
	}
	return all, nil
}
