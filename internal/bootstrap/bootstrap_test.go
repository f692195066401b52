package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posemind/internal/domain"
	"posemind/internal/infra"
	"posemind/internal/orchestrator"
)

func testConfig(t *testing.T) *infra.Config {
	dir := t.TempDir()
	return &infra.Config{
		UploadFolder:       filepath.Join(dir, "uploads"),
		ResultFolder:       filepath.Join(dir, "results"),
		VisionModel:        "vision",
		ImageModel:         "image",
		GenerationTimeout:  time.Second,
		GenerationInterval: 100 * time.Millisecond,
		APIRequestTimeout:  time.Second,
		NumPoses:           2,
		DailyUsageLimit:    1,
		UsageStore:         "memory",
	}
}

func TestBuildWithoutCredentialsRejectsBeforeCharging(t *testing.T) {
	cfg := testConfig(t)
	c, err := Build(context.Background(), cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer c.Close()

	assert.DirExists(t, cfg.UploadFolder)
	assert.DirExists(t, cfg.ResultFolder)
	assert.False(t, c.Chat.HasCredentials())
	assert.Equal(t, "image", c.Images.Model())

	_, err = c.Service.PlanAndGenerate(context.Background(), "s", orchestrator.GenerateInput{ImageFilename: "x.jpg"})
	assert.True(t, errors.Is(err, domain.ErrMissingCredentials))

	st, err := c.Service.Usage(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Used)
	assert.Equal(t, 1, st.Remaining)
}

func TestBuildRedisQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.UsageStore = "redis"
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.AIAPIKey = "k"
	cfg.ImageAPIKey = "k"
	cfg.AIBaseURL = "http://127.0.0.1:1"

	c, err := Build(context.Background(), cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	require.Len(t, c.closers, 1)

	_, err = c.Uploads.Write(context.Background(), "1_a.jpg", []byte("x"))
	require.NoError(t, err)

	// The first request is charged before its file is analyzed; the second
	// is over the limit of one.
	_, err = c.Service.Plan(context.Background(), "s", orchestrator.GenerateInput{ImageFilename: "1_a.jpg"})
	require.NoError(t, err)
	_, err = c.Service.Plan(context.Background(), "s", orchestrator.GenerateInput{ImageFilename: "1_a.jpg"})
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))

	// The plan prepaid one illustration per suggested pose.
	var grants []string
	for _, k := range mr.Keys() {
		if strings.Contains(k, ":grant:") {
			grants = append(grants, k)
		}
	}
	require.Len(t, grants, 1)
	left, err := mr.Get(grants[0])
	require.NoError(t, err)
	assert.Equal(t, "2", left)

	require.NoError(t, c.Close())
}

func TestBuildRedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.UsageStore = "redis"
	cfg.RedisURL = "redis://127.0.0.1:1"
	_, err := Build(context.Background(), cfg, zerolog.Nop(), nil)
	assert.Error(t, err)
}
