package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the tracer name for feed operations
	TracerName = "github.com/willibrandon/gonuget-server"
)

// Common attribute keys
const (
	AttrPackageID      = attribute.Key("feed.package.id")
	AttrPackageVersion = attribute.Key("feed.package.version")
	AttrOperation      = attribute.Key("feed.operation")
	AttrSearchTerm     = attribute.Key("feed.search.term")
	AttrUser           = attribute.Key("feed.user")
)

// StartUploadSpan starts a span for a package upload
func StartUploadSpan(ctx context.Context, packageID, version string) (context.Context, trace.Span) {
	return StartSpan(ctx, TracerName, "package.upload",
		trace.WithAttributes(
			AttrPackageID.String(packageID),
			AttrPackageVersion.String(version),
			AttrOperation.String("upload"),
		),
	)
}

// StartDownloadSpan starts a span for an archive download
func StartDownloadSpan(ctx context.Context, packageID, version string) (context.Context, trace.Span) {
	return StartSpan(ctx, TracerName, "package.download",
		trace.WithAttributes(
			AttrPackageID.String(packageID),
			AttrPackageVersion.String(version),
			AttrOperation.String("download"),
		),
	)
}

// StartDeleteSpan starts a span for a version or package deletion
func StartDeleteSpan(ctx context.Context, packageID, version string) (context.Context, trace.Span) {
	return StartSpan(ctx, TracerName, "package.delete",
		trace.WithAttributes(
			AttrPackageID.String(packageID),
			AttrPackageVersion.String(version),
			AttrOperation.String("delete"),
		),
	)
}

// StartUpdateSpan starts a span for a metadata update
func StartUpdateSpan(ctx context.Context, packageID, version string) (context.Context, trace.Span) {
	return StartSpan(ctx, TracerName, "package.update",
		trace.WithAttributes(
			AttrPackageID.String(packageID),
			AttrPackageVersion.String(version),
			AttrOperation.String("update"),
		),
	)
}

// StartSearchSpan starts a span for a feed query
func StartSearchSpan(ctx context.Context, operation, term string) (context.Context, trace.Span) {
	return StartSpan(ctx, TracerName, "feed."+operation,
		trace.WithAttributes(
			AttrSearchTerm.String(term),
			AttrOperation.String(operation),
		),
	)
}
