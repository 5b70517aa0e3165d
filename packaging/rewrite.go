package packaging

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

// Rewrite re-emits the archive with its .nuspec entry replaced by the
// serialized form of nuspec. All entries are written with the Store
// method: the original compression method per entry is not preserved.
// Metadata updates are rare and feed clients do not care about archive
// compression, only about the manifest contents.
func (a *Archive) Rewrite(nuspec *Nuspec) ([]byte, error) {
	manifest, err := EncodeNuspec(nuspec)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(a.Bytes), a.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)

	for _, entry := range zr.File {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Store,
			Modified: entry.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", entry.Name, err)
		}

		if entry.Name == a.NuspecName {
			if _, err := w.Write(manifest); err != nil {
				return nil, fmt.Errorf("rewrite %s: %w", entry.Name, err)
			}
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", entry.Name, err)
		}
		_, err = io.Copy(w, rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", entry.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish rewritten archive: %w", err)
	}

	return out.Bytes(), nil
}
