package checkpoint_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	times   map[string]time.Time
	clock   time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		times:   make(map[string]time.Time),
		clock:   time.Now(),
	}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.clock = f.clock.Add(time.Second)
	f.objects[key] = data
	f.times[key] = f.clock

	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("not found")}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k), LastModified: aws.Time(f.times[k])})
	}

	return out, nil
}

func stores(t *testing.T) map[string]checkpoint.Store {
	t.Helper()

	fs, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)

	return map[string]checkpoint.Store{
		"memory": checkpoint.NewMemoryStore(),
		"file":   fs,
		"s3":     checkpoint.NewS3StoreWithClient(newFakeS3(), "bucket", "checkpoints/"),
	}
}

func params(v float64) fl.Parameters {
	return fl.Parameters{{Shape: []int{2}, Values: []float64{v, -v}}}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			id, err := store.Save(ctx, checkpoint.Checkpoint{
				ProjectID: "proj",
				SessionID: "sess-1",
				Version:   1,
				Params:    params(0.5),
				Accuracy:  0.875,
			})
			require.NoError(t, err)
			assert.Equal(t, "proj.sess-1.1", id)

			cp, err := store.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, id, cp.ID)
			assert.Equal(t, uint64(1), cp.Version)
			assert.Equal(t, []float64{0.5, -0.5}, cp.Params[0].Values)
			assert.InDelta(t, 0.875, cp.Accuracy, 1e-9)
			assert.False(t, cp.CreatedAt.IsZero())

			_, err = store.Load(ctx, "proj.sess-1.2")
			assert.ErrorIs(t, err, checkpoint.ErrNotFound)
		})
	}
}

func TestSaveNeverOverwrites(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			cp := checkpoint.Checkpoint{ProjectID: "proj", SessionID: "sess", Version: 3, Params: params(1)}
			_, err := store.Save(ctx, cp)
			require.NoError(t, err)

			cp.Params = params(2)
			_, err = store.Save(ctx, cp)
			assert.ErrorIs(t, err, checkpoint.ErrCheckpointExists)

			got, err := store.Load(ctx, checkpoint.NewID("proj", "sess", 3))
			require.NoError(t, err)
			assert.Equal(t, []float64{1, -1}, got.Params[0].Values)
		})
	}
}

func TestLatestAndList(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := store.Latest(ctx, "proj")
			assert.ErrorIs(t, err, checkpoint.ErrNotFound)

			base := time.Now().UTC()
			for v := uint64(1); v <= 3; v++ {
				_, err := store.Save(ctx, checkpoint.Checkpoint{
					ProjectID: "proj",
					SessionID: "sess-a",
					Version:   v,
					Params:    params(float64(v)),
					CreatedAt: base.Add(time.Duration(v) * time.Second),
				})
				require.NoError(t, err)
			}
			_, err = store.Save(ctx, checkpoint.Checkpoint{
				ProjectID: "other",
				SessionID: "sess-b",
				Version:   9,
				CreatedAt: base.Add(time.Minute),
			})
			require.NoError(t, err)

			latest, err := store.Latest(ctx, "proj")
			require.NoError(t, err)
			assert.Equal(t, uint64(3), latest.Version)
			assert.Equal(t, "sess-a", latest.SessionID)

			list, err := store.List(ctx, "proj", "sess-a")
			require.NoError(t, err)
			require.Len(t, list, 3)
			for i, cp := range list {
				assert.Equal(t, uint64(i+1), cp.Version)
			}

			empty, err := store.List(ctx, "proj", "missing")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestInvalidIdentifiers(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := store.Save(ctx, checkpoint.Checkpoint{ProjectID: "../etc", SessionID: "s", Version: 1})
			assert.ErrorIs(t, err, checkpoint.ErrInvalidID)

			_, err = store.Load(ctx, "not-an-id")
			assert.Error(t, err)
		})
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id      string
		project string
		session string
		version uint64
		err     error
	}{
		{id: "p.s.12", project: "p", session: "s", version: 12},
		{id: "p.s", err: checkpoint.ErrInvalidID},
		{id: "p.s.x", err: checkpoint.ErrInvalidID},
		{id: "p/x.s.1", err: checkpoint.ErrInvalidID},
	}

	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			t.Parallel()

			p, s, v, err := checkpoint.ParseID(tc.id)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.project, p)
			assert.Equal(t, tc.session, s)
			assert.Equal(t, tc.version, v)
		})
	}
}

func TestFactory(t *testing.T) {
	t.Parallel()

	s, err := checkpoint.New(context.Background(), checkpoint.Config{Type: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = checkpoint.New(context.Background(), checkpoint.Config{Type: "tape"})
	assert.Error(t, err)
}
