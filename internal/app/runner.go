package app

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/furiosa-ai/furiosa-client-go/internal/config"
	"github.com/furiosa-ai/furiosa-client-go/internal/domain"
	"github.com/furiosa-ai/furiosa-client-go/internal/logger"
	"github.com/furiosa-ai/furiosa-client-go/internal/storage"
	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
	"github.com/furiosa-ai/furiosa-client-go/pkg/publishers"
)

// Submitter is the service surface the runner drives. *furiosa.Client implements it.
type Submitter interface {
	Endpoint() furiosa.Endpoint
	Compile(ctx context.Context, req furiosa.CompileRequest) ([]byte, error)
	BuildCalibrationModel(ctx context.Context, req furiosa.CalibrateRequest) ([]byte, error)
	Quantize(ctx context.Context, req furiosa.QuantizeRequest) ([]byte, error)
	Optimize(ctx context.Context, req furiosa.OptimizeRequest) ([]byte, error)
}

// Runner executes jobs against the service. It reuses cached artifacts for
// identical requests, writes results to disk and reports every finished job
// to the configured publishers.
type Runner struct {
	client      Submitter
	store       storage.Store
	fanout      *publishers.Fanout
	parallelism int
	log         logger.Logger
}

// NewRunner builds a runner from config: it opens the artifact cache and the
// publishers declared in cfg.PublishersFile, if any.
func NewRunner(ctx context.Context, cfg *config.Config, client Submitter, log logger.Logger) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fanout, err := loadFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.CacheType, cfg.CachePath, storage.Options{
		TTL:             cfg.CacheTTL,
		CleanupInterval: cfg.CacheCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	log.DebugObj("cache initialized", "cache_config", map[string]any{
		"type":                     cfg.CacheType,
		"path":                     cfg.CachePath,
		"ttl_seconds":              int(cfg.CacheTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.CacheCleanupInterval.Seconds()),
	})

	return newRunner(client, store, fanout, cfg.Parallelism, log), nil
}

func newRunner(client Submitter, store storage.Store, fanout *publishers.Fanout, parallelism int, log logger.Logger) *Runner {
	if parallelism <= 0 {
		parallelism = 1
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if store == nil {
		store, _ = storage.NewStore("none", "", storage.Options{})
	}
	return &Runner{
		client:      client,
		store:       store,
		fanout:      fanout,
		parallelism: parallelism,
		log:         log,
	}
}

// loadFanout builds the enabled publishers; an empty path yields an empty fanout.
func loadFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if path == "" {
		return publishers.NewFanout(nil), nil
	}

	reg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubs), nil
}

// Close releases the cache and publisher clients.
func (r *Runner) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if err := r.fanout.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	return errors.Join(errs...)
}

// submitFn sends the source bytes to the service.
type submitFn func(ctx context.Context, source []byte) ([]byte, error)

// execute runs one job end to end and publishes its outcome.
func (r *Runner) execute(ctx context.Context, job domain.Job, docs [][]byte, submit submitFn) (domain.Outcome, error) {
	start := time.Now()
	out := domain.Outcome{Job: job}
	out.Err = r.produce(ctx, &out, docs, submit)
	out.Elapsed = time.Since(start)

	r.publish(ctx, out)

	if out.Err != nil {
		r.log.ErrorObj("job failed", "job_error", map[string]any{
			"operation":  job.Operation,
			"source":     job.SourcePath,
			"error_kind": furiosa.KindName(out.Err),
			"error":      out.Err.Error(),
		})
		return out, fmt.Errorf("%s %s: %w", job.Operation, job.SourcePath, out.Err)
	}

	r.log.InfoObj("job completed", "job_result", map[string]any{
		"operation":      job.Operation,
		"source":         job.SourcePath,
		"output":         job.OutputPath,
		"artifact_bytes": out.ArtifactBytes,
		"cached":         out.Cached,
		"elapsed_ms":     out.Elapsed.Milliseconds(),
	})
	return out, nil
}

func (r *Runner) produce(ctx context.Context, out *domain.Outcome, docs [][]byte, submit submitFn) error {
	source, err := os.ReadFile(out.Job.SourcePath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	out.Digest = r.digest(out.Job.Operation, docs, source)
	artifact, ok, err := r.store.Get(out.Digest)
	if err != nil {
		r.log.WarnObj("cache lookup failed", "cache_error", map[string]any{
			"digest": out.Digest,
			"error":  err.Error(),
		})
		ok = false
	}

	if ok {
		out.Cached = true
	} else {
		artifact, err = submit(ctx, source)
		if err != nil {
			return err
		}
		if err := r.store.Put(out.Digest, artifact); err != nil {
			r.log.WarnObj("cache store failed", "cache_error", map[string]any{
				"digest": out.Digest,
				"error":  err.Error(),
			})
		}
	}

	out.ArtifactBytes = len(artifact)
	return writeArtifact(out.Job.OutputPath, artifact)
}

// publish reports the outcome; sink failures are logged and never fail the job.
func (r *Runner) publish(ctx context.Context, out domain.Outcome) {
	if r.fanout.Size() == 0 {
		return
	}
	evt := publishers.NewEvent(r.client.Endpoint().String(), out)
	delivered, err := r.fanout.Publish(ctx, evt)
	if err != nil {
		r.log.WarnObj("event publish failed", "publish_error", map[string]any{
			"source":    out.Job.SourcePath,
			"delivered": delivered,
			"error":     err.Error(),
		})
	}
}

// digest identifies a request by everything the service sees.
func (r *Runner) digest(op domain.Operation, docs [][]byte, source []byte) string {
	h := sha256.New()
	writeField := func(b []byte) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	writeField([]byte(r.client.Endpoint().String()))
	writeField([]byte(op))
	for _, d := range docs {
		writeField(d)
	}
	writeField(source)
	return hex.EncodeToString(h.Sum(nil))
}

// writeArtifact replaces path atomically with data.
func writeArtifact(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}
