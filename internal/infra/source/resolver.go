package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/port"
	"go.uber.org/zap"
)

// liveSourceName is the raw value that selects device capture instead of a
// media file.
const liveSourceName = "live"

// PermissionError reports a capture capability the user has not granted.
type PermissionError struct {
	Capability port.Capability
	Result     port.PermissionResult
}

func (e *PermissionError) Error() string {
	if e.Result.Guidance != "" {
		return fmt.Sprintf("%s access %s: %s", e.Capability, e.Result.Decision, e.Result.Guidance)
	}
	return fmt.Sprintf("%s access %s", e.Capability, e.Result.Decision)
}

// Resolver turns a raw source reference into a readable media source: local
// paths and file:// URIs are probed in place, s3:// and minio:// URIs are
// fetched into the cache first, and "live" opens the capture devices behind
// the permission gate.
type Resolver struct {
	fetcher     port.ObjectFetcher // nil when object storage is not configured
	gate        port.CaptureGate
	prober      port.MediaProber
	cacheDir    string
	videoDevice string
	audioDevice string
	logger      *zap.Logger
}

func NewResolver(fetcher port.ObjectFetcher, gate port.CaptureGate, prober port.MediaProber, cacheDir, videoDevice, audioDevice string, logger *zap.Logger) *Resolver {
	return &Resolver{
		fetcher:     fetcher,
		gate:        gate,
		prober:      prober,
		cacheDir:    cacheDir,
		videoDevice: videoDevice,
		audioDevice: audioDevice,
		logger:      logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, raw string) (entity.MediaSource, error) {
	if raw == liveSourceName {
		return r.resolveLive(ctx)
	}

	path, err := r.Localize(ctx, raw)
	if err != nil {
		return entity.MediaSource{}, err
	}
	return r.resolveFile(ctx, path)
}

// Localize returns a local filesystem path for raw, fetching object-store
// references into the cache first. Unlike Resolve it neither probes the media
// nor opens capture devices, so it also accepts still images.
func (r *Resolver) Localize(ctx context.Context, raw string) (string, error) {
	switch {
	case raw == liveSourceName:
		return "", fmt.Errorf("source %q is not a media file", raw)
	case strings.HasPrefix(raw, "s3://"):
		return r.fetchToCache(ctx, strings.TrimPrefix(raw, "s3://"))
	case strings.HasPrefix(raw, "minio://"):
		return r.fetchToCache(ctx, strings.TrimPrefix(raw, "minio://"))
	case strings.HasPrefix(raw, "file://"):
		return r.statFile(strings.TrimPrefix(raw, "file://"))
	default:
		return r.statFile(raw)
	}
}

func (r *Resolver) statFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("media source %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("media source %s is a directory", path)
	}
	return path, nil
}

func (r *Resolver) resolveFile(ctx context.Context, path string) (entity.MediaSource, error) {
	duration, err := r.prober.Duration(ctx, path)
	if err != nil {
		return entity.MediaSource{}, fmt.Errorf("probe %s: %w", path, err)
	}

	return entity.MediaSource{
		Kind:     entity.SourceFile,
		Path:     path,
		Duration: duration,
	}, nil
}

func (r *Resolver) fetchToCache(ctx context.Context, ref string) (string, error) {
	if r.fetcher == nil {
		return "", fmt.Errorf("object storage source %q given but no object store is configured", ref)
	}

	bucket, key := splitObjectRef(ref)
	destDir := filepath.Join(r.cacheDir, "sources")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create sources dir: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(key))

	r.logger.Info("fetching remote media source",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("dest", destPath),
	)
	if err := r.fetcher.FetchObject(ctx, bucket, key, destPath); err != nil {
		return "", err
	}
	return destPath, nil
}

// splitObjectRef splits "bucket/path/to/key" into bucket and key. A ref with
// no slash is a bare key in the configured default bucket.
func splitObjectRef(ref string) (string, string) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return "", parts[0]
	}
	return parts[0], parts[1]
}

func (r *Resolver) resolveLive(ctx context.Context) (entity.MediaSource, error) {
	for _, c := range []port.Capability{port.CapabilityCamera, port.CapabilityMicrophone} {
		result, err := r.gate.Request(ctx, c)
		if err != nil {
			return entity.MediaSource{}, fmt.Errorf("request %s permission: %w", c, err)
		}
		if result.Decision != port.DecisionGranted {
			return entity.MediaSource{}, &PermissionError{Capability: c, Result: result}
		}
	}

	return entity.MediaSource{
		Kind:        entity.SourceLive,
		VideoDevice: r.videoDevice,
		AudioDevice: r.audioDevice,
	}, nil
}
