package client

import (
	"context"
	"encoding/json"
	"os"
	fp "path/filepath"

	ds "github.com/ipfs/go-datastore"
	dslvl "github.com/ipfs/go-ds-leveldb"
	"github.com/pyropy/udfs/core/model"
)

// ManifestStore keeps a FileManifest for every file this client put
// successfully, keyed by remote filename.
type ManifestStore struct {
	Files *dslvl.Datastore
}

func NewManifestStore(dsPath string) (*ManifestStore, error) {
	if err := os.MkdirAll(fp.Dir(dsPath), 0o700); err != nil {
		return nil, err
	}

	store, err := dslvl.NewDatastore(dsPath, nil)
	if err != nil {
		return nil, err
	}

	return &ManifestStore{
		Files: store,
	}, nil
}

// Get returns ds.ErrNotFound when the file was never put from here.
func (m *ManifestStore) Get(ctx context.Context, filename string) (*model.FileManifest, error) {
	k := ds.NewKey(filename)
	b, err := m.Files.Get(ctx, k)
	if err != nil {
		return nil, err
	}

	var manifest model.FileManifest
	err = json.Unmarshal(b, &manifest)
	if err != nil {
		return nil, err
	}

	return &manifest, nil
}

func (m *ManifestStore) Put(ctx context.Context, manifest model.FileManifest) error {
	b, err := json.Marshal(manifest)
	if err != nil {
		return err
	}

	k := ds.NewKey(manifest.Filename)
	return m.Files.Put(ctx, k, b)
}

func (m *ManifestStore) Close() error {
	return m.Files.Close()
}
