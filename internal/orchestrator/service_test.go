package orchestrator

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posemind/internal/domain"
	"posemind/internal/imagegen"
	"posemind/internal/providers/chat"
	"posemind/internal/providers/pose"
	"posemind/internal/providers/scene"
	"posemind/internal/storage"
	"posemind/internal/usage"
)

type countingScene struct{ calls atomic.Int32 }

func (c *countingScene) Analyze(context.Context, string) string {
	c.calls.Add(1)
	return "海边黄昏"
}

type countingPoses struct{ calls atomic.Int32 }

func (c *countingPoses) Suggest(_ context.Context, _ string, g domain.Gender) []domain.PoseSuggestion {
	c.calls.Add(1)
	return pose.Defaults(g.Label(), 4)
}

type fakeIllustrator struct {
	mu     sync.Mutex
	fail   map[int]bool
	calls  []int
	delays map[int]time.Duration
}

func (f *fakeIllustrator) Generate(_ context.Context, req imagegen.Request) (string, error) {
	if d := f.delays[req.Index]; d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	f.calls = append(f.calls, req.Index)
	f.mu.Unlock()
	if f.fail[req.Index] {
		return "", imagegen.ErrTaskFailed
	}
	return "pose_variant_" + string(rune('0'+req.Index)) + ".jpg", nil
}

type creds bool

func (c creds) HasCredentials() bool { return bool(c) }

func writeUpload(t *testing.T, store *storage.FileStore, name string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		img.Set(x, 5, color.RGBA{B: 200, A: 255})
	}
	f, err := os.Create(filepath.Join(store.BasePath(), name))
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())
}

type fixture struct {
	svc    *Service
	scene  *countingScene
	poses  *countingPoses
	illus  *fakeIllustrator
	guard  *usage.Guard
	upload *storage.FileStore
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	uploads, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	writeUpload(t, uploads, "beach.jpg")

	f := &fixture{
		scene:  &countingScene{},
		poses:  &countingPoses{},
		illus:  &fakeIllustrator{fail: map[int]bool{}},
		guard:  usage.NewGuard(usage.NewMemoryStore(), 20),
		upload: uploads,
	}
	o := Options{
		Scene:       f.scene,
		Poses:       f.poses,
		Illustrator: f.illus,
		Uploads:     uploads,
		Quota:       f.guard,
		Credentials: []CredentialChecker{creds(true), creds(true)},
		Count:       4,
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.svc = NewService(o)
	return f
}

func TestPlanAndGenerateKeepsSuggestionOrder(t *testing.T) {
	f := newFixture(t)
	f.illus.delays = map[int]time.Duration{1: 20 * time.Millisecond, 2: 10 * time.Millisecond}
	f.illus.fail[3] = true

	res, err := f.svc.PlanAndGenerate(context.Background(), "s", GenerateInput{ImageFilename: "beach.jpg", Gender: domain.GenderFemale})
	require.NoError(t, err)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "女生", res.Gender)
	require.Len(t, res.PoseVariants, 3)
	assert.Equal(t, "pose_variant_1.jpg", res.PoseVariants[0].Image)
	assert.Equal(t, "pose_variant_2.jpg", res.PoseVariants[1].Image)
	assert.Equal(t, "pose_variant_4.jpg", res.PoseVariants[2].Image)
	assert.Equal(t, "自由漫步 · 女生", res.PoseVariants[2].Name)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, f.illus.calls)
}

func TestPlanAndGenerateSequentialWithLimitOne(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Concurrency = 1 })
	f.illus.delays = map[int]time.Duration{1: 5 * time.Millisecond}

	_, err := f.svc.PlanAndGenerate(context.Background(), "s", GenerateInput{ImageFilename: "beach.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, f.illus.calls)
}

func TestPlanAndGenerateAllFailuresStillSucceed(t *testing.T) {
	f := newFixture(t)
	f.illus.fail = map[int]bool{1: true, 2: true, 3: true, 4: true}

	res, err := f.svc.PlanAndGenerate(context.Background(), "s", GenerateInput{ImageFilename: "beach.jpg"})
	require.NoError(t, err)
	assert.NotNil(t, res.PoseVariants)
	assert.Empty(t, res.PoseVariants)
}

func TestPreconditionOrder(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		creds    []CredentialChecker
		want     error
	}{
		{"missing filename beats credentials", "", []CredentialChecker{creds(false)}, domain.ErrMissingImage},
		{"credentials beat missing file", "nope.jpg", []CredentialChecker{creds(true), creds(false)}, domain.ErrMissingCredentials},
		{"missing file", "nope.jpg", []CredentialChecker{creds(true)}, domain.ErrImageNotFound},
		{"traversal", "../beach.jpg", []CredentialChecker{creds(true)}, domain.ErrImageNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, func(o *Options) { o.Credentials = tc.creds })
			_, err := f.svc.PlanAndGenerate(context.Background(), "s", GenerateInput{ImageFilename: tc.filename})
			require.ErrorIs(t, err, tc.want)

			st, err := f.guard.Status(context.Background(), "s")
			require.NoError(t, err)
			assert.Zero(t, st.Used, "failed preconditions must not charge quota")
			assert.Zero(t, f.scene.calls.Load())
		})
	}
}

func TestQuotaTwentyFirstCallMakesNoRemoteWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := GenerateInput{ImageFilename: "beach.jpg"}

	for i := 1; i <= 20; i++ {
		_, err := f.svc.PlanAndGenerate(ctx, "s", in)
		require.NoError(t, err, "call %d", i)
	}
	require.EqualValues(t, 20, f.scene.calls.Load())

	_, err := f.svc.PlanAndGenerate(ctx, "s", in)
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.EqualValues(t, 20, f.scene.calls.Load())
	assert.EqualValues(t, 20, f.poses.calls.Load())
	assert.Len(t, f.illus.calls, 80)

	_, err = f.svc.Plan(ctx, "s", in)
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestPlanReturnsSuggestions(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Count = 2 })

	res, err := f.svc.Plan(context.Background(), "s", GenerateInput{ImageFilename: "beach.jpg", Gender: domain.GenderMale})
	require.NoError(t, err)
	assert.Equal(t, "海边黄昏", res.SceneAnalysis)
	assert.Equal(t, "男生", res.Gender)
	assert.Len(t, res.Poses, 2)
	assert.Empty(t, f.illus.calls)

	st, err := f.svc.Usage(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Used)
}

func TestIllustrate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := domain.PoseSuggestion{Name: "倚墙", Description: "单肩倚靠墙面", Category: "倚靠"}

	v, err := f.svc.Illustrate(ctx, "s", IllustrateInput{ImageFilename: "beach.jpg", Pose: p, Index: 2})
	require.NoError(t, err)
	assert.Equal(t, "pose_variant_2.jpg", v.Image)
	assert.Equal(t, "倚墙", v.Name)

	_, err = f.svc.Illustrate(ctx, "s", IllustrateInput{ImageFilename: "beach.jpg", Pose: domain.PoseSuggestion{Name: "x"}})
	require.ErrorIs(t, err, domain.ErrMissingDescription)

	f.illus.fail[1] = true
	_, err = f.svc.Illustrate(ctx, "s", IllustrateInput{ImageFilename: "beach.jpg", Pose: p})
	require.ErrorIs(t, err, domain.ErrIllustrationFailed)

	st, err := f.svc.Usage(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Used, "quota is never refunded")
}

func TestPlannedIllustrationsShareThePlanUnit(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Count = 2 })
	f.guard.Limit = 1
	ctx := context.Background()

	plan, err := f.svc.Plan(ctx, "s", GenerateInput{ImageFilename: "beach.jpg"})
	require.NoError(t, err)
	require.Len(t, plan.Poses, 2)

	for i, p := range plan.Poses {
		_, err := f.svc.Illustrate(ctx, "s", IllustrateInput{ImageFilename: "beach.jpg", Pose: p, Index: i + 1})
		require.NoError(t, err, "pose %d", i+1)
	}
	st, err := f.svc.Usage(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Used)

	_, err = f.svc.Illustrate(ctx, "s", IllustrateInput{ImageFilename: "beach.jpg", Pose: plan.Poses[0], Index: 3})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Len(t, f.illus.calls, 2)
}

func TestPipelineSurvivesClientCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.PlanAndGenerate(ctx, "s", GenerateInput{ImageFilename: "beach.jpg"})
	require.NoError(t, err)
	assert.Len(t, res.PoseVariants, 4)
}

// Scene analysis and pose suggestion both hit a broken chat endpoint, and the
// third illustration fails: the response still carries three variants.
func TestEndToEndWithRemoteOutages(t *testing.T) {
	var chatCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatCalls.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := chat.NewClient(chat.Options{APIKey: "k", BaseURL: srv.URL, Model: "vision"})
	f := newFixture(t, func(o *Options) {
		o.Scene = scene.NewAnalyzer(scene.Options{Client: client})
		o.Poses = pose.NewSuggester(pose.Options{Client: client, Count: 4})
		o.Credentials = []CredentialChecker{client, creds(true)}
	})
	f.illus.fail[3] = true

	res, err := f.svc.PlanAndGenerate(context.Background(), "s", GenerateInput{ImageFilename: "beach.jpg", Gender: domain.GenderFemale})
	require.NoError(t, err)

	assert.EqualValues(t, 2, chatCalls.Load())
	assert.Equal(t, scene.Fallback, res.SceneAnalysis)
	require.Len(t, res.PoseVariants, 3)
	assert.Equal(t, []string{"自然站姿 · 女生", "轻松坐姿 · 女生", "自由漫步 · 女生"},
		[]string{res.PoseVariants[0].Name, res.PoseVariants[1].Name, res.PoseVariants[2].Name})
}
