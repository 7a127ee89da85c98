package serve_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/pyscope/pyscope/app/serve"
	"github.com/pyscope/pyscope/manager"
	"github.com/pyscope/pyscope/supervisor"
)

func TestService_LaunchWaitReport(t *testing.T) {
	service := newService(t)

	script := writeScript(t, "echo out\necho err >&2\nexit 3\n")

	info, err := service.Launch(serve.LaunchParams{Script: script})
	require.NoError(t, err)

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, script, info.Script)

	report, err := service.Wait(context.Background(), info.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, report.ExitCode)
	assert.Empty(t, report.LaunchError)
	assert.Equal(t, "out\n", report.Stdout)
	assert.Equal(t, "err\n", report.Stderr)
	assert.Empty(t, report.Leaks)

	status, err := service.Status(info.ID)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateCompleted.String(), status.State)

	list := service.List()
	require.Len(t, list, 1)
	assert.Equal(t, info.ID, list[0].ID)

	require.NoError(t, service.Release(info.ID))

	_, err = service.Status(info.ID)
	assert.ErrorIs(t, err, serve.ErrUnknownRun)
	assert.Empty(t, service.List())
}

func TestService_LaunchRequiresScript(t *testing.T) {
	service := newService(t)

	_, err := service.Launch(serve.LaunchParams{})
	assert.ErrorIs(t, err, serve.ErrMissingScript)
}

func TestService_LaunchFailureReported(t *testing.T) {
	service := newService(t)

	info, err := service.Launch(serve.LaunchParams{
		Script: filepath.Join(t.TempDir(), "missing.py"),
	})
	require.NoError(t, err)

	report, err := service.Wait(context.Background(), info.ID)
	require.NoError(t, err)

	assert.Equal(t, supervisor.ExitCodeLaunchFailure, report.ExitCode)
	assert.NotEmpty(t, report.LaunchError)
	assert.Empty(t, report.Stdout)
}

func TestService_Cancel(t *testing.T) {
	service := newService(t)

	script := writeScript(t, "sleep 30\n")

	info, err := service.Launch(serve.LaunchParams{Script: script})
	require.NoError(t, err)

	waitForState(t, service, info.ID, supervisor.StateRunning)

	_, err = service.Cancel(info.ID)
	require.NoError(t, err)

	report, err := service.Wait(context.Background(), info.ID)
	require.NoError(t, err)
	assert.NotEqual(t, 0, report.ExitCode)

	status, err := service.Status(info.ID)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateCancelled.String(), status.State)
}

func TestService_ReleaseInFlight(t *testing.T) {
	service := newService(t)

	script := writeScript(t, "sleep 30\n")

	info, err := service.Launch(serve.LaunchParams{Script: script})
	require.NoError(t, err)

	waitForState(t, service, info.ID, supervisor.StateRunning)

	assert.ErrorIs(t, service.Release(info.ID), serve.ErrRunInFlight)

	_, err = service.Cancel(info.ID)
	require.NoError(t, err)

	_, err = service.Wait(context.Background(), info.ID)
	require.NoError(t, err)

	assert.NoError(t, service.Release(info.ID))
}

func TestService_WaitAbandonedKeepsRun(t *testing.T) {
	service := newService(t)

	script := writeScript(t, "sleep 30\n")

	info, err := service.Launch(serve.LaunchParams{Script: script})
	require.NoError(t, err)

	waitForState(t, service, info.ID, supervisor.StateRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = service.Wait(ctx, info.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the abandoned wait left the run untouched
	status, err := service.Status(info.ID)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateRunning.String(), status.State)

	_, err = service.Cancel(info.ID)
	require.NoError(t, err)

	_, err = service.Wait(context.Background(), info.ID)
	require.NoError(t, err)
}

func TestService_EventsOverWebsocket(t *testing.T) {
	service := newService(t)

	srv, err := serve.NewRPCServer(service)
	require.NoError(t, err)
	defer srv.Stop()

	ts := httptest.NewServer(serve.NewRPCHandler(srv))
	defer ts.Close()

	client, err := rpc.DialContext(context.Background(), wsURL(ts.URL))
	require.NoError(t, err)
	defer client.Close()

	script := writeScript(t, "echo one\nsleep 1\necho two\n")

	var info serve.RunInfo
	err = client.CallContext(
		context.Background(),
		&info,
		"run_launch",
		serve.LaunchParams{Script: script},
	)
	require.NoError(t, err)

	events := make(chan serve.Event, 64)
	sub, err := client.Subscribe(context.Background(), "run", events, "events", info.ID)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var (
		lines   []string
		samples int
		report  *serve.RunReport
	)

	deadline := time.After(10 * time.Second)
collect:
	for {
		select {
		case event := <-events:
			switch event.Type {
			case serve.EventOutput:
				lines = append(lines, event.Line)
			case serve.EventSample:
				samples++
			case serve.EventDone:
				report = event.Result
				break collect
			}
		case err := <-sub.Err():
			t.Fatalf("subscription failed: %v", err)
		case <-deadline:
			t.Fatal("timed out waiting for the terminal event")
		}
	}

	require.NotNil(t, report)
	assert.Equal(t, 0, report.ExitCode)

	// the subscription was set up after launch, so early lines may
	// predate it; the line after the sleep must have been seen live
	assert.Contains(t, lines, "two")
	assert.NotZero(t, samples)
	assert.Contains(t, report.Stdout, "one\n")
	assert.Contains(t, report.Stdout, "two\n")
}

func TestService_LateSubscriberGetsTerminalEvent(t *testing.T) {
	service := newService(t)

	srv, err := serve.NewRPCServer(service)
	require.NoError(t, err)
	defer srv.Stop()

	ts := httptest.NewServer(serve.NewRPCHandler(srv))
	defer ts.Close()

	script := writeScript(t, "echo done\n")

	info, err := service.Launch(serve.LaunchParams{Script: script})
	require.NoError(t, err)

	_, err = service.Wait(context.Background(), info.ID)
	require.NoError(t, err)

	client, err := rpc.DialContext(context.Background(), wsURL(ts.URL))
	require.NoError(t, err)
	defer client.Close()

	events := make(chan serve.Event, 8)
	sub, err := client.Subscribe(context.Background(), "run", events, "events", info.ID)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case event := <-events:
		require.Equal(t, serve.EventDone, event.Type)
		require.NotNil(t, event.Result)
		assert.Equal(t, 0, event.Result.ExitCode)
		assert.Equal(t, "done\n", event.Result.Stdout)
	case err := <-sub.Err():
		t.Fatalf("subscription failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the terminal event")
	}
}

func TestService_OverHTTP(t *testing.T) {
	service := newService(t)

	srv, err := serve.NewRPCServer(service)
	require.NoError(t, err)
	defer srv.Stop()

	ts := httptest.NewServer(serve.NewRPCHandler(srv))
	defer ts.Close()

	client, err := rpc.DialContext(context.Background(), ts.URL)
	require.NoError(t, err)
	defer client.Close()

	script := writeScript(t, "echo http\n")

	var info serve.RunInfo
	err = client.CallContext(
		context.Background(),
		&info,
		"run_launch",
		serve.LaunchParams{Script: script},
	)
	require.NoError(t, err)

	var report serve.RunReport
	err = client.CallContext(context.Background(), &report, "run_wait", info.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, report.ExitCode)
	assert.Equal(t, "http\n", report.Stdout)

	var list []serve.RunInfo
	err = client.CallContext(context.Background(), &list, "run_list")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, info.ID, list[0].ID)

	// the http codec cannot carry notifications
	events := make(chan serve.Event)
	_, err = client.Subscribe(context.Background(), "run", events, "events", info.ID)
	assert.ErrorIs(t, err, rpc.ErrNotificationsUnsupported)
}

func TestLifecycle_CloseCancelsRuns(t *testing.T) {
	mgr := newManager(t)

	lc := fxtest.NewLifecycle(t)
	service := serve.NewLifecycleService(serve.ServiceParams{
		Context: context.Background(),
		Manager: mgr,
		Logger:  zap.NewNop(),
	}, lc)
	lc.RequireStart()

	script := writeScript(t, "sleep 30\n")

	info, err := service.Launch(serve.LaunchParams{Script: script})
	require.NoError(t, err)

	waitForState(t, service, info.ID, supervisor.StateRunning)

	lc.RequireStop()

	status, err := service.Status(info.ID)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateCancelled.String(), status.State)

	_, err = service.Launch(serve.LaunchParams{Script: script})
	assert.ErrorIs(t, err, serve.ErrServiceClosed)
}

func newManager(t *testing.T) *manager.Manager {
	t.Helper()

	mgr, err := manager.New(manager.Params{
		MaxCapacity:    2,
		Interpreter:    "/bin/sh",
		SampleInterval: 20 * time.Millisecond,
		GracePeriod:    50 * time.Millisecond,
		Log:            zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Shutdown)

	return mgr
}

func newService(t *testing.T) *serve.RunService {
	t.Helper()

	return serve.NewService(serve.ServiceParams{
		Context: context.Background(),
		Manager: newManager(t),
		Logger:  zap.NewNop(),
	})
}

func waitForState(t *testing.T, service *serve.RunService, id rpc.ID, state supervisor.State) {
	t.Helper()

	require.Eventually(t, func() bool {
		info, err := service.Status(id)
		return err == nil && info.State == state.String()
	}, 2*time.Second, 10*time.Millisecond)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func writeScript(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "target.sh")
	err := os.WriteFile(path, []byte(content), 0o755)
	require.NoError(t, err)

	return path
}
