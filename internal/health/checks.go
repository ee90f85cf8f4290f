package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// RedisChecker pings the handoff Redis.
type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string { return "redis" }

func (r *RedisChecker) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// OutputDirChecker verifies recordings can be written: the directory exists
// or can be created, accepts a file, and has free space left.
type OutputDirChecker struct {
	dir     string
	minFree int64
}

// NewOutputDirChecker reports degraded when less than minFree bytes are
// available. A zero minFree skips the space check.
func NewOutputDirChecker(dir string, minFree int64) *OutputDirChecker {
	return &OutputDirChecker{dir: dir, minFree: minFree}
}

func (o *OutputDirChecker) Name() string { return "output_dir" }

func (o *OutputDirChecker) Check(ctx context.Context) error {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return fmt.Errorf("output directory unavailable: %w", err)
	}

	f, err := os.CreateTemp(o.dir, ".health-*")
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	if o.minFree <= 0 {
		return nil
	}
	free, err := freeBytes(filepath.Clean(o.dir))
	if err != nil || free < 0 {
		return nil
	}
	if free < o.minFree {
		return Degraded(fmt.Sprintf("only %d MiB free in %s", free>>20, o.dir))
	}
	return nil
}

// ReadinessSource is satisfied by the recording controller.
type ReadinessSource interface {
	IsReady() bool
}

// CameraChecker reports degraded while the camera is starting or switching.
type CameraChecker struct {
	src ReadinessSource
}

func NewCameraChecker(src ReadinessSource) *CameraChecker {
	return &CameraChecker{src: src}
}

func (c *CameraChecker) Name() string { return "camera" }

func (c *CameraChecker) Check(ctx context.Context) error {
	if !c.src.IsReady() {
		return Degraded("camera not ready")
	}
	return nil
}
