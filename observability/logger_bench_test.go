package observability

import (
	"bytes"
	"context"
	"testing"
)

func BenchmarkLogger_Info(b *testing.B) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, InfoLevel)

	b.ReportAllocs()

	for b.Loop() {
		logger.Info("Feed request handled")
	}
}

func BenchmarkLogger_InfoWithArgs(b *testing.B) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, InfoLevel)

	b.ReportAllocs()

	for b.Loop() {
		logger.Info("Uploaded {PackageId} {Version}", "chocolatey", "2.2.2")
	}
}

func BenchmarkLogger_InfoContext(b *testing.B) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, InfoLevel)
	ctx := context.Background()

	b.ReportAllocs()

	for b.Loop() {
		logger.InfoContext(ctx, "Feed request handled")
	}
}

func BenchmarkLogger_Debug_Filtered(b *testing.B) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, InfoLevel) // Debug will be filtered

	b.ReportAllocs()

	for b.Loop() {
		logger.Debug("Filtered debug message")
	}
}

func BenchmarkLogger_ForContext(b *testing.B) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, InfoLevel)

	b.ReportAllocs()

	for b.Loop() {
		childLogger := logger.ForContext("PackageId", "chocolatey")
		childLogger.Info("Version listed")
	}
}

func BenchmarkLogger_MultipleProperties(b *testing.B) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, InfoLevel)

	b.ReportAllocs()

	for b.Loop() {
		logger.
			WithProperty("User", "ada").
			WithProperty("PackageId", "git").
			WithProperty("Version", "2.43.0").
			Info("Package {Action}", "pushed")
	}
}

func BenchmarkLogger_AllLevels(b *testing.B) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, VerboseLevel)

	b.Run("Verbose", func(b *testing.B) {
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			logger.Verbose("Verbose message")
		}
	})

	b.Run("Debug", func(b *testing.B) {
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			logger.Debug("Debug message")
		}
	})

	b.Run("Info", func(b *testing.B) {
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			logger.Info("Info message")
		}
	})

	b.Run("Warn", func(b *testing.B) {
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			logger.Warn("Warning message")
		}
	})

	b.Run("Error", func(b *testing.B) {
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			logger.Error("Error message")
		}
	})
}

func BenchmarkNullLogger(b *testing.B) {
	logger := NewNullLogger()

	b.ReportAllocs()

	for b.Loop() {
		logger.Info("This should have zero overhead")
	}
}
