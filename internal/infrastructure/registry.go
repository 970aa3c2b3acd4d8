// Package infrastructure resolves the dictionary keys of a lot document to
// shared floor tile and wallpaper prototypes.
package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"bluebear.game/internal/lot"
)

var ErrUnknownKey = errors.New("infrastructure: unknown key")

type file struct {
	Tiles      []tileSpec      `yaml:"tiles"`
	Wallpapers []wallpaperSpec `yaml:"wallpapers"`
}

type tileSpec struct {
	Key      string `yaml:"key"`
	Name     string `yaml:"name"`
	Material string `yaml:"material"`
	Price    int    `yaml:"price"`
}

type wallpaperSpec struct {
	Key     string `yaml:"key"`
	Name    string `yaml:"name"`
	Texture string `yaml:"texture"`
	Price   int    `yaml:"price"`
}

// Registry hands out one prototype pointer per key. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	tiles      map[string]*lot.Tile
	wallpapers map[string]*lot.Wallpaper
}

var _ lot.InfrastructureFactory = (*Registry)(nil)

func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func Parse(b []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	r := &Registry{
		tiles:      make(map[string]*lot.Tile, len(f.Tiles)),
		wallpapers: make(map[string]*lot.Wallpaper, len(f.Wallpapers)),
	}
	for i, t := range f.Tiles {
		key := strings.TrimSpace(t.Key)
		if key == "" {
			return nil, fmt.Errorf("tiles[%d]: missing key", i)
		}
		if _, dup := r.tiles[key]; dup {
			return nil, fmt.Errorf("tiles[%d]: duplicate key %q", i, key)
		}
		r.tiles[key] = &lot.Tile{Key: key, Name: t.Name, Material: t.Material, Price: t.Price}
	}
	for i, w := range f.Wallpapers {
		key := strings.TrimSpace(w.Key)
		if key == "" {
			return nil, fmt.Errorf("wallpapers[%d]: missing key", i)
		}
		if _, dup := r.wallpapers[key]; dup {
			return nil, fmt.Errorf("wallpapers[%d]: duplicate key %q", i, key)
		}
		r.wallpapers[key] = &lot.Wallpaper{Key: key, Name: w.Name, Texture: w.Texture, Price: w.Price}
	}
	return r, nil
}

func (r *Registry) FloorTile(key string) (*lot.Tile, error) {
	t, ok := r.tiles[key]
	if !ok {
		return nil, fmt.Errorf("%w: floor tile %q", ErrUnknownKey, key)
	}
	return t, nil
}

func (r *Registry) Wallpaper(key string) (*lot.Wallpaper, error) {
	w, ok := r.wallpapers[key]
	if !ok {
		return nil, fmt.Errorf("%w: wallpaper %q", ErrUnknownKey, key)
	}
	return w, nil
}

// Keys returns the sorted tile and wallpaper keys.
func (r *Registry) Keys() (tiles, wallpapers []string) {
	for k := range r.tiles {
		tiles = append(tiles, k)
	}
	for k := range r.wallpapers {
		wallpapers = append(wallpapers, k)
	}
	sort.Strings(tiles)
	sort.Strings(wallpapers)
	return tiles, wallpapers
}
