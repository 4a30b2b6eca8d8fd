package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
)

// ObjectStore exposes put/url/delete over local storage with signed public links.
type ObjectStore struct {
	files   *LocalStorage
	signer  *SignedURLSigner
	baseURL string
}

// NewObjectStore builds an ObjectStore; baseURL is the API root serving downloads.
func NewObjectStore(files *LocalStorage, signer *SignedURLSigner, baseURL string) *ObjectStore {
	return &ObjectStore{files: files, signer: signer, baseURL: baseURL}
}

// Put stores data under the given key and returns its reference.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	return s.files.Save(ctx, key, data)
}

// PublicURL returns a signed, time-limited download URL for ref.
func (s *ObjectStore) PublicURL(ref string) (string, error) {
	token, _, err := s.signer.Generate(ref)
	if err != nil {
		return "", fmt.Errorf("sign artifact url: %w", err)
	}
	return s.baseURL + path.Join("/certificates", url.PathEscape(token)), nil
}

// Delete removes the artifact behind ref.
func (s *ObjectStore) Delete(ctx context.Context, ref string) error {
	return s.files.Delete(ctx, ref)
}

// OpenSigned validates a download token and opens the referenced artifact.
func (s *ObjectStore) OpenSigned(token string) (*os.File, string, error) {
	ref, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", err
	}
	file, err := s.files.Open(ref)
	if err != nil {
		return nil, "", err
	}
	return file, ref, nil
}
