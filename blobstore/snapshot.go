package blobstore

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// UploadDir copies every file in dir into the store under prefix. File names
// become blob names relative to dir, in slash form. Subdirectories are
// skipped; snapshot directories are flat.
func UploadDir(ctx context.Context, st Store, dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if err := uploadFile(ctx, st, filepath.Join(dir, entry.Name()), path.Join(prefix, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

func uploadFile(ctx context.Context, st Store, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return st.Put(ctx, name, f)
}

// DownloadDir copies every blob under prefix from the store into dir,
// creating it if needed.
func DownloadDir(ctx context.Context, st Store, prefix, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	names, err := st.List(ctx, prefix)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		return ErrNotFound
	}

	for _, name := range names {
		base := strings.TrimPrefix(name, prefix)
		base = strings.TrimPrefix(base, "/")
		if base == "" || strings.Contains(base, "/") {
			continue
		}

		if err := downloadFile(ctx, st, name, filepath.Join(dir, base)); err != nil {
			return err
		}
	}

	return nil
}

func downloadFile(ctx context.Context, st Store, name, path string) error {
	r, err := st.Open(ctx, name)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
