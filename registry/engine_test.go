package registry

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/gonuget-server/db"
	"github.com/willibrandon/gonuget-server/observability"
	"github.com/willibrandon/gonuget-server/packaging"
	"github.com/willibrandon/gonuget-server/storage"
)

func newTestEngine(t *testing.T) (*Engine, *db.DB, *storage.Store) {
	t.Helper()

	database, err := db.Open("sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.Bootstrap(context.Background()))

	store, err := storage.New(filepath.Join(t.TempDir(), "archives"), observability.NewNullLogger())
	require.NoError(t, err)

	return New(database, store, observability.NewNullLogger()), database, store
}

func newTestUser(t *testing.T, database *db.DB, username string) *db.User {
	t.Helper()
	u, err := db.Register(context.Background(), database, db.NoDirectory{},
		username, username, username+"@example.com", "hunter2")
	require.NoError(t, err)
	return u
}

func newAdmin(t *testing.T, database *db.DB) *db.User {
	t.Helper()
	require.NoError(t, db.EnsureAdmin(context.Background(), database, "secret"))
	admin, err := db.GetUser(context.Background(), database, db.AdminUsername)
	require.NoError(t, err)
	return admin
}

// buildNupkg assembles an in-memory archive around a generated nuspec.
func buildNupkg(t *testing.T, id, ver string, mutate func(*packaging.NuspecMetadata)) []byte {
	t.Helper()

	nuspec := &packaging.Nuspec{
		Xmlns: packaging.NuspecNamespaceV6,
		Metadata: packaging.NuspecMetadata{
			ID:          id,
			Version:     ver,
			Description: "test package " + id,
		},
	}
	if mutate != nil {
		mutate(&nuspec.Metadata)
	}

	manifest, err := packaging.EncodeNuspec(nuspec)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(id + ".nuspec")
	require.NoError(t, err)
	_, err = w.Write(manifest)
	require.NoError(t, err)
	w, err = zw.Create("tools/chocolateyinstall.ps1")
	require.NoError(t, err)
	_, err = w.Write([]byte("Write-Host " + id))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestUpload(t *testing.T) {
	engine, database, store := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	data := buildNupkg(t, "foo", "1.2.3", func(m *packaging.NuspecMetadata) {
		m.Authors = "Ada, Grace"
		m.Tags = "cli tools"
		m.ProjectURL = "https://example.com/foo"
	})

	pv, err := engine.Upload(ctx, ada, data)
	require.NoError(t, err)
	assert.Equal(t, "foo", pv.ID)
	assert.Equal(t, "1.2.3", pv.Version)
	assert.Equal(t, int64(len(data)), pv.Size)
	require.NotNil(t, pv.HashAlgorithm)
	assert.Equal(t, "Sha256", *pv.HashAlgorithm)

	pkg, err := db.GetPackage(ctx, database, "foo")
	require.NoError(t, err)
	assert.Equal(t, "ada", pkg.Maintainer)
	require.NotNil(t, pkg.ProjectURL)
	assert.Equal(t, "https://example.com/foo", *pkg.ProjectURL)

	authors, err := pv.Authors(ctx, database)
	require.NoError(t, err)
	require.Len(t, authors, 2)

	tags, err := pkg.Tags(ctx, database)
	require.NoError(t, err)
	require.Len(t, tags, 2)

	// The archive on disk is byte-identical to the upload.
	stored, err := os.ReadFile(store.Path("foo", "1.2.3"))
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestUploadRequiresConfirmedUser(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ada := newTestUser(t, database, "ada")
	require.NoError(t, ada.SetConfirmed(context.Background(), database, false))

	_, err := engine.Upload(context.Background(), ada, buildNupkg(t, "foo", "1.0.0", nil))
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestUploadInvalidInput(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ada := newTestUser(t, database, "ada")
	ctx := context.Background()

	_, err := engine.Upload(ctx, ada, []byte("not a zip"))
	assert.ErrorIs(t, err, packaging.ErrInvalidArchive)

	_, err = engine.Upload(ctx, ada, buildNupkg(t, "foo", "not-a-version", nil))
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestUploadMaintainerCheck(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")
	eve := newTestUser(t, database, "eve")
	admin := newAdmin(t, database)

	_, err := engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.0.0", nil))
	require.NoError(t, err)

	_, err = engine.Upload(ctx, eve, buildNupkg(t, "foo", "1.1.0", nil))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The admin may push to any package; the maintainer stays put.
	_, err = engine.Upload(ctx, admin, buildNupkg(t, "foo", "1.2.0", nil))
	require.NoError(t, err)

	pkg, err := db.GetPackage(ctx, database, "foo")
	require.NoError(t, err)
	assert.Equal(t, "ada", pkg.Maintainer)
}

func TestUploadReplacesSameVersion(t *testing.T) {
	engine, database, store := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	_, err := engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.0.0", func(m *packaging.NuspecMetadata) {
		m.Summary = "first"
	}))
	require.NoError(t, err)

	replacement := buildNupkg(t, "foo", "1.0.0", func(m *packaging.NuspecMetadata) {
		m.Summary = "second"
	})
	pv, err := engine.Upload(ctx, ada, replacement)
	require.NoError(t, err)
	require.NotNil(t, pv.Summary)
	assert.Equal(t, "second", *pv.Summary)

	versions, err := db.AllPackageVersions(ctx, database)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	stored, err := os.ReadFile(store.Path("foo", "1.0.0"))
	require.NoError(t, err)
	assert.Equal(t, replacement, stored)
}

func TestUploadPackageMetadataOnlyFromGreatestVersion(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	_, err := engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.0.0", func(m *packaging.NuspecMetadata) {
		m.ProjectURL = "https://example.com/v1"
	}))
	require.NoError(t, err)

	_, err = engine.Upload(ctx, ada, buildNupkg(t, "foo", "2.0.0", func(m *packaging.NuspecMetadata) {
		m.ProjectURL = "https://example.com/v2"
	}))
	require.NoError(t, err)

	// A backfilled older version must not regress the shared metadata.
	_, err = engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.5.0", func(m *packaging.NuspecMetadata) {
		m.ProjectURL = "https://example.com/v1.5"
	}))
	require.NoError(t, err)

	pkg, err := db.GetPackage(ctx, database, "foo")
	require.NoError(t, err)
	require.NotNil(t, pkg.ProjectURL)
	assert.Equal(t, "https://example.com/v2", *pkg.ProjectURL)
}

func TestUploadDependencies(t *testing.T) {
	engine, database, store := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	_, err := engine.Upload(ctx, ada, buildNupkg(t, "bar", "1.5.0", nil))
	require.NoError(t, err)

	pv, err := engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.0.0", func(m *packaging.NuspecMetadata) {
		m.Dependencies = &packaging.DependenciesElement{
			Dependencies: []packaging.Dependency{
				{ID: "bar", Version: "[1.0,2.0)"},
				{ID: "chocolatey-core.extension", Version: "1.0"},
			},
		}
	}))
	require.NoError(t, err)

	deps, err := pv.Dependencies(ctx, database)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "bar", deps[0].ID)
	assert.Equal(t, ">=1.0.0, <2.0.0", deps[0].VersionReq)

	// A dependency on a package the feed does not carry is accepted
	// and stays unresolvable until that package shows up.
	dangling, err := engine.Upload(ctx, ada, buildNupkg(t, "baz", "1.0.0", func(m *packaging.NuspecMetadata) {
		m.Dependencies = &packaging.DependenciesElement{
			Dependencies: []packaging.Dependency{{ID: "missing", Version: "1.0"}},
		}
	}))
	require.NoError(t, err)
	_, statErr := os.Stat(store.Path("baz", "1.0.0"))
	assert.NoError(t, statErr)

	deps, err = dangling.Dependencies(ctx, database)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	_, err = deps[0].NewestResolution(ctx, database)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestDeleteVersionBlocking(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	_, err := engine.Upload(ctx, ada, buildNupkg(t, "bar", "1.0.0", nil))
	require.NoError(t, err)
	_, err = engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.0.0", func(m *packaging.NuspecMetadata) {
		m.Dependencies = &packaging.DependenciesElement{
			Dependencies: []packaging.Dependency{{ID: "bar", Version: "[1.0,2.0)"}},
		}
	}))
	require.NoError(t, err)

	// bar 1.0.0 is foo's only resolution.
	err = engine.DeleteVersion(ctx, ada, "bar", "1.0.0")
	var blocked *BlockingDependencyError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "bar", blocked.Target)
	assert.Contains(t, blocked.Dependents, "foo")

	// Removing the dependent unblocks the target.
	require.NoError(t, engine.DeleteVersion(ctx, ada, "foo", "1.0.0"))
	require.NoError(t, engine.DeleteVersion(ctx, ada, "bar", "1.0.0"))

	_, err = db.GetPackage(ctx, database, "bar")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestDeleteVersionCollapsesPackage(t *testing.T) {
	engine, database, store := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	_, err := engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.0.0", func(m *packaging.NuspecMetadata) {
		m.Tags = "cli"
		m.Authors = "Ada"
	}))
	require.NoError(t, err)

	require.NoError(t, engine.DeleteVersion(ctx, ada, "foo", "1.0.0"))

	_, err = db.GetPackage(ctx, database, "foo")
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = db.GetTag(ctx, database, "cli")
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = db.GetAuthor(ctx, database, "Ada")
	assert.ErrorIs(t, err, db.ErrNotFound)

	_, statErr := os.Stat(store.Path("foo", "1.0.0"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDeleteVersionPermission(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")
	eve := newTestUser(t, database, "eve")

	_, err := engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.0.0", nil))
	require.NoError(t, err)

	assert.ErrorIs(t, engine.DeleteVersion(ctx, eve, "foo", "1.0.0"), ErrPermissionDenied)
}

func TestDeletePackage(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	for _, ver := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		_, err := engine.Upload(ctx, ada, buildNupkg(t, "foo", ver, nil))
		require.NoError(t, err)
	}

	require.NoError(t, engine.DeletePackage(ctx, ada, "foo"))

	versions, err := db.AllPackageVersions(ctx, database)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestUpdateVersionRewritesArchive(t *testing.T) {
	engine, database, store := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	original := buildNupkg(t, "foo", "1.0.0", nil)
	_, err := engine.Upload(ctx, ada, original)
	require.NoError(t, err)

	summary := "a new summary"
	pv, err := engine.UpdateVersion(ctx, ada, "foo", "1.0.0", VersionPatch{Summary: &summary})
	require.NoError(t, err)
	require.NotNil(t, pv.Summary)
	assert.Equal(t, summary, *pv.Summary)

	// The manifest inside the stored archive reflects the change.
	stored, err := os.ReadFile(store.Path("foo", "1.0.0"))
	require.NoError(t, err)
	assert.NotEqual(t, original, stored)

	archive, err := packaging.OpenArchive(stored)
	require.NoError(t, err)
	assert.Equal(t, summary, archive.Nuspec.Metadata.Summary)

	// And the row digest matches the rewritten bytes.
	require.NotNil(t, pv.Hash)
	assert.Equal(t, archive.Hash, *pv.Hash)
	assert.Equal(t, int64(len(stored)), pv.Size)
}

func TestUpdatePackagePropagates(t *testing.T) {
	engine, database, store := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	_, err := engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.0.0", nil))
	require.NoError(t, err)
	_, err = engine.Upload(ctx, ada, buildNupkg(t, "foo", "2.0.0", nil))
	require.NoError(t, err)

	docsURL := "https://docs.example.com/foo"
	pkg, err := engine.UpdatePackage(ctx, ada, "foo", PackagePatch{DocsURL: &docsURL})
	require.NoError(t, err)
	require.NotNil(t, pkg.DocsURL)

	for _, ver := range []string{"1.0.0", "2.0.0"} {
		stored, err := os.ReadFile(store.Path("foo", ver))
		require.NoError(t, err)
		archive, err := packaging.OpenArchive(stored)
		require.NoError(t, err)
		assert.Equal(t, docsURL, archive.Nuspec.Metadata.DocsURL)
	}

	_ = database
}

func TestTransferMaintainer(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")
	_ = newTestUser(t, database, "grace")
	eve := newTestUser(t, database, "eve")

	_, err := engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.0.0", nil))
	require.NoError(t, err)

	_, err = engine.TransferMaintainer(ctx, eve, "foo", "eve")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	pkg, err := engine.TransferMaintainer(ctx, ada, "foo", "grace")
	require.NoError(t, err)
	assert.Equal(t, "grace", pkg.Maintainer)

	// The previous maintainer lost push rights.
	_, err = engine.Upload(ctx, ada, buildNupkg(t, "foo", "1.1.0", nil))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFeedSizeGauges(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	uploadsBefore, err := observability.GetHistogramSampleCount(observability.DBQueryDuration, "upload")
	require.NoError(t, err)

	for _, nupkg := range [][]byte{
		buildNupkg(t, "foo", "1.0.0", nil),
		buildNupkg(t, "foo", "1.1.0", nil),
		buildNupkg(t, "bar", "1.0.0", nil),
	} {
		_, err := engine.Upload(ctx, ada, nupkg)
		require.NoError(t, err)
	}

	packages, err := observability.GetGaugeValue(observability.FeedPackagesTotal)
	require.NoError(t, err)
	assert.Equal(t, float64(2), packages)
	versions, err := observability.GetGaugeValue(observability.FeedVersionsTotal)
	require.NoError(t, err)
	assert.Equal(t, float64(3), versions)

	// Each upload ran one timed transaction.
	uploadsAfter, err := observability.GetHistogramSampleCount(observability.DBQueryDuration, "upload")
	require.NoError(t, err)
	assert.Equal(t, uploadsBefore+3, uploadsAfter)

	require.NoError(t, engine.DeleteVersion(ctx, ada, "foo", "1.1.0"))
	require.NoError(t, engine.DeletePackage(ctx, ada, "bar"))

	packages, err = observability.GetGaugeValue(observability.FeedPackagesTotal)
	require.NoError(t, err)
	assert.Equal(t, float64(1), packages)
	versions, err = observability.GetGaugeValue(observability.FeedVersionsTotal)
	require.NoError(t, err)
	assert.Equal(t, float64(1), versions)
}

func TestDownload(t *testing.T) {
	engine, database, _ := newTestEngine(t)
	ctx := context.Background()
	ada := newTestUser(t, database, "ada")

	data := buildNupkg(t, "foo", "1.0.0", nil)
	_, err := engine.Upload(ctx, ada, data)
	require.NoError(t, err)

	pv, handle, err := engine.Download(ctx, "foo", "1.0.0")
	require.NoError(t, err)
	got, err := io.ReadAll(handle)
	require.NoError(t, err)
	require.NoError(t, handle.Close())
	assert.Equal(t, data, got)
	assert.Equal(t, int64(1), pv.VersionDownloadCount)

	_, _, err = engine.Download(ctx, "foo", "9.9.9")
	assert.ErrorIs(t, err, db.ErrNotFound)
}
