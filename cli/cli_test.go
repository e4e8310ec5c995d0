package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/api"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShape(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc  string
		in    string
		shape [][]int
		err   error
	}{
		{desc: "empty", in: "", shape: nil},
		{desc: "single vector", in: "10", shape: [][]int{{10}}},
		{desc: "matrix and bias", in: "784x10,10", shape: [][]int{{784, 10}, {10}}},
		{desc: "spaces", in: " 2x2 , 3 ", shape: [][]int{{2, 2}, {3}}},
		{desc: "zero dimension", in: "0x2", err: errInvalidShape},
		{desc: "garbage", in: "axb", err: errInvalidShape},
		{desc: "trailing comma", in: "2,", err: errInvalidShape},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			shape, err := parseShape(tc.in)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.shape, shape)
		})
	}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())

	return out.String(), errOut.String()
}

// Not parallel: commands share the package-level SDK.
func TestCommands(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := coordinator.DefaultConfig()
	cfg.VotingWindow = time.Minute
	svc := coordinator.NewService(
		storage.NewMemoryRepositories(),
		checkpoint.NewMemoryStore(),
		events.NewBus(cfg.EventQueueSize, discard.NewCounter(), logger),
		nil,
		cfg,
		logger,
	)
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "test"))
	t.Cleanup(func() {
		ts.Close()
		_ = svc.Shutdown(context.Background())
	})
	SetSDK(sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL}))

	out, _ := execute(t, NewProjectsCmd(), "create", "mnist", "2", "1", "--shape", "2x2,2")
	assert.Contains(t, out, "mnist")

	out, _ = execute(t, NewProjectsCmd(), "view", "mnist")
	assert.Contains(t, out, "min_participants")

	out, _ = execute(t, NewParticipantsCmd(), "register", "mnist", "worker-1", "--samples", "10")
	assert.Contains(t, out, "worker-1")

	out, _ = execute(t, NewParticipantsCmd(), "heartbeat", "worker-1")
	assert.Contains(t, out, "ok")

	out, _ = execute(t, NewSessionsCmd(), "start", "mnist")
	assert.Contains(t, out, "voting")

	out, _ = execute(t, NewProjectsCmd(), "vote", "mnist", "worker-1", "fedprox")
	assert.Contains(t, out, "fedprox")

	_, errOut := execute(t, NewProjectsCmd(), "vote", "mnist", "worker-1", "sgd")
	assert.Contains(t, errOut, "error")

	out, _ = execute(t, NewProjectsCmd(), "view")
	assert.Contains(t, out, "usage")

	_, errOut = execute(t, NewProjectsCmd(), "view", "missing")
	assert.Contains(t, errOut, "404")

	_, errOut = execute(t, NewProjectsCmd(), "create", "bad", "2", "1", "--shape", "x")
	assert.Contains(t, errOut, errInvalidShape.Error())
}
