package imageprocessor

import (
	"image"
	"path/filepath"
	"strings"
	"sync"

	"emperror.dev/errors"
)

// ErrNoLoader is returned when no loader is registered for an extension
var ErrNoLoader = errors.NewPlain("no suitable loader found")

// ImageLoaderRegistry maintains a registry of image loaders
type ImageLoaderRegistry struct {
	loaders       map[string]ImageLoader
	defaultLoader ImageLoader
	mutex         sync.RWMutex
}

// NewImageLoaderRegistry creates a registry with loaders for every supported format
func NewImageLoaderRegistry() *ImageLoaderRegistry {
	registry := &ImageLoaderRegistry{
		loaders: make(map[string]ImageLoader),
	}

	standardLoader := NewStandardImageLoader()
	tiffLoader := NewTiffImageLoader()
	for ext, format := range formatExtensions {
		switch {
		case tiffLoader.supports(format):
			registry.RegisterLoader(ext, tiffLoader)
		case standardLoader.supports(format):
			registry.RegisterLoader(ext, standardLoader)
		}
	}

	// image.Decode sniffs content, so mislabelled files still decode
	registry.defaultLoader = standardLoader

	return registry
}

// RegisterLoader registers a new loader for a specific file extension
func (r *ImageLoaderRegistry) RegisterLoader(ext string, loader ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.loaders[strings.ToLower(ext)] = loader
}

// GetLoader returns the appropriate loader for the given path
func (r *ImageLoaderRegistry) GetLoader(path string) ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ext := strings.ToLower(filepath.Ext(path))
	if loader, ok := r.loaders[ext]; ok {
		return loader
	}
	return r.defaultLoader
}

// CanLoadFile checks if a loader is registered for the extension of path
func (r *ImageLoaderRegistry) CanLoadFile(path string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, ok := r.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadImage decodes path with the registered loader
func (r *ImageLoaderRegistry) LoadImage(path string) (image.Image, error) {
	loader := r.GetLoader(path)
	if loader == nil {
		return nil, errors.Wrapf(ErrNoLoader, "%s", path)
	}
	return loader.LoadImage(path)
}
