// Package fsbridge adapts the project's native filesystem abstraction to the
// billy filesystems go-git operates on.
package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
)

// ToBilly unwraps a native filesystem into the billy filesystem it is backed
// by. Only billy-backed filesystems (fs/billy.FS) are supported.
//
//nolint:ireturn // billy.Filesystem is the type go-git requires
func ToBilly(fsys fs.Filesystem) (billy.Filesystem, error) {
	wrapped, ok := fsys.(*fsb.FS)
	if !ok {
		return nil, fmt.Errorf("filesystem must be backed by fs/billy, got %T", fsys)
	}
	return wrapped.Raw(), nil
}

// NewStorage builds go-git object storage over the given filesystem with an
// LRU object cache of the requested size.
func NewStorage(billyFS billy.Filesystem, cacheSize int) *filesystem.Storage {
	if cacheSize <= 0 {
		cacheSize = 100
	}
	return filesystem.NewStorage(billyFS, cache.NewObjectLRU(cache.FileSize(cacheSize)))
}
