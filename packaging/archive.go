package packaging

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Archive is a nupkg held fully in memory, with its manifest parsed and
// its content digest computed. Uploads are size-capped by the server, so
// buffering the whole archive is acceptable and keeps the stored bytes
// byte-identical to what the client sent.
type Archive struct {
	// Bytes is the raw archive exactly as received.
	Bytes []byte

	// Nuspec is the parsed manifest of the first .nuspec entry.
	Nuspec *Nuspec

	// NuspecName is the archive entry name the manifest was read from.
	NuspecName string

	// Hash is the lowercase hex SHA-256 of Bytes.
	Hash string
}

// HashAlgorithm names the digest used for Archive.Hash.
const HashAlgorithm = "Sha256"

// OpenArchive parses a nupkg from raw bytes.
//
// Returns ErrInvalidArchive if the bytes are not a ZIP, ErrNuspecNotFound
// if no entry name contains ".nuspec", and ErrInvalidManifest if the
// manifest is malformed or lacks id/version.
func OpenArchive(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	var nuspec *Nuspec
	var nuspecName string
	for _, entry := range zr.File {
		if !strings.Contains(entry.Name, ".nuspec") {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		nuspec, err = ParseNuspec(rc)
		_ = rc.Close()
		if err != nil {
			return nil, err
		}
		nuspecName = entry.Name
		break
	}

	if nuspec == nil {
		return nil, ErrNuspecNotFound
	}
	if nuspec.Metadata.ID == "" {
		return nil, fmt.Errorf("%w: missing id element", ErrInvalidManifest)
	}
	if nuspec.Metadata.Version == "" {
		return nil, fmt.Errorf("%w: missing version element", ErrInvalidManifest)
	}

	digest := sha256.Sum256(data)

	return &Archive{
		Bytes:      data,
		Nuspec:     nuspec,
		NuspecName: nuspecName,
		Hash:       hex.EncodeToString(digest[:]),
	}, nil
}

// Size returns the archive size in bytes.
func (a *Archive) Size() int64 {
	return int64(len(a.Bytes))
}
