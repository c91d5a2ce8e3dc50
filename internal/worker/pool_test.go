package worker

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veritax/pkg/domain-errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestLocalPool_SingleAdmission(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	pool := NewLocalPool(func(ctx context.Context, task Task) (*Result, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxSeen.Load()
			if n <= cur || maxSeen.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return &Result{Status: StatusValid}, nil
	})
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := pool.Run(context.Background(), Task{RunID: "r"})
			require.NoError(t, err)
			assert.Equal(t, StatusValid, res.Status)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestLocalPool_ContextCancelledWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	pool := NewLocalPool(func(ctx context.Context, task Task) (*Result, error) {
		<-release
		return &Result{Status: StatusValid}, nil
	})
	defer pool.Close()

	go pool.Run(context.Background(), Task{}) //nolint:errcheck
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := pool.Run(ctx, Task{})
	close(release)

	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

// writeScript writes an executable shell script standing in for the
// worker binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestProcPool_RoundTrip(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
echo '{"status":"invalid","fact_count":12,"errors":[{"code":"formula:assertionUnsatisfied","message":"v_1","severity":"error"}]}'`)
	pool := NewProcPool(script, "", 5*time.Second, testLogger())
	defer pool.Close()

	res, err := pool.Run(context.Background(), Task{RunID: "r1", InstancePath: "/tmp/x.xbrl"})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, 12, res.FactCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "formula:assertionUnsatisfied", res.Errors[0].Code)
}

func TestProcPool_TimeoutKillsWorker(t *testing.T) {
	script := writeScript(t, "sleep 10")
	pool := NewProcPool(script, "", 100*time.Millisecond, testLogger())
	defer pool.Close()

	start := time.Now()
	_, err := pool.Run(context.Background(), Task{RunID: "r1"})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestProcPool_TimeoutKillsWholeWorkerTree(t *testing.T) {
	// The hung grandchild inherits the stdio pipes; the deadline must
	// still bound the wait instead of blocking until the grandchild dies.
	script := writeScript(t, "sleep 10 &\nsleep 10")
	pool := NewProcPool(script, "", 100*time.Millisecond, testLogger())
	defer pool.Close()

	start := time.Now()
	_, err := pool.Run(context.Background(), Task{RunID: "r1"})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestProcPool_NonZeroExitIsInfrastructureFailure(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
echo "engine panicked" >&2
exit 3`)
	pool := NewProcPool(script, "", 5*time.Second, testLogger())
	defer pool.Close()

	_, err := pool.Run(context.Background(), Task{RunID: "r1"})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
	assert.Contains(t, err.Error(), "engine panicked")
}

func TestProcPool_MalformedOutput(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
echo "not json"`)
	pool := NewProcPool(script, "", 5*time.Second, testLogger())
	defer pool.Close()

	_, err := pool.Run(context.Background(), Task{RunID: "r1"})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
}

func TestNewPool_ModeSelection(t *testing.T) {
	run := func(ctx context.Context, task Task) (*Result, error) { return &Result{}, nil }

	local, err := NewPool("local", "", "", 0, run, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &LocalPool{}, local)

	proc, err := NewPool("subprocess", "/usr/local/bin/veritax-worker", "/etc/veritax.yaml", time.Minute, run, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &ProcPool{}, proc)

	_, err = NewPool("subprocess", "", "", 0, run, testLogger())
	assert.Error(t, err)

	_, err = NewPool("threads", "", "", 0, run, testLogger())
	assert.Error(t, err)
}
