package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// ErrImageNotFound is returned when the store has no image under a name.
var ErrImageNotFound = errors.New("loader: image not found")

// ManifestExt is appended to an image name to locate its manifest.
const ManifestExt = ".yaml"

// Manifest carries optional per-image loading hints.
type Manifest struct {
	Stack int `json:"stack,omitempty" yaml:"stack,omitempty"`
	Entry int `json:"entry,omitempty" yaml:"entry,omitempty"`
}

// Image is a program image fetched from the store.
type Image struct {
	Name     string
	Code     []byte
	Manifest Manifest
}

// Store reads program images from any afs supported location.
type Store struct {
	fs      afs.Service
	baseURL string
}

// NewStore creates an image store rooted at baseURL.
func NewStore(fs afs.Service, baseURL string) *Store {
	return &Store{fs: fs, baseURL: url.Normalize(baseURL, file.Scheme)}
}

// BaseURL returns the normalized store location.
func (s *Store) BaseURL() string { return s.baseURL }

func (s *Store) imageURL(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: invalid name %q", ErrImageNotFound, name)
	}
	return url.Join(s.baseURL, name), nil
}

// Load fetches the image and its manifest, when present.
func (s *Store) Load(ctx context.Context, name string) (*Image, error) {
	URL, err := s.imageURL(name)
	if err != nil {
		return nil, err
	}
	if exists, _ := s.fs.Exists(ctx, URL); !exists {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, name)
	}
	code, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image %s: %w", name, err)
	}
	ret := &Image{Name: name, Code: code}
	manifestURL := URL + ManifestExt
	if exists, _ := s.fs.Exists(ctx, manifestURL); exists {
		data, err := s.fs.DownloadWithURL(ctx, manifestURL)
		if err != nil {
			return nil, fmt.Errorf("failed to download manifest %s: %w", name, err)
		}
		if err = yaml.Unmarshal(data, &ret.Manifest); err != nil {
			return nil, fmt.Errorf("invalid manifest %s: %w", name, err)
		}
	}
	return ret, nil
}

// Save uploads an image and, when manifest is not nil, its manifest.
func (s *Store) Save(ctx context.Context, name string, code []byte, manifest *Manifest) error {
	URL, err := s.imageURL(name)
	if err != nil {
		return err
	}
	if err = s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(code)); err != nil {
		return fmt.Errorf("failed to upload image %s: %w", name, err)
	}
	if manifest == nil {
		return nil
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return err
	}
	if err = s.fs.Upload(ctx, URL+ManifestExt, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload manifest %s: %w", name, err)
	}
	return nil
}
