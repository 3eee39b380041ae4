package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"orders/internal/core/application/usecases/commands"
	"orders/internal/jobs"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRelayer struct {
	calls atomic.Int32
	err   error
}

func (r *countingRelayer) Handle(context.Context, commands.RelayOutboxCommand) (int, error) {
	r.calls.Add(1)
	return 1, r.err
}

type fakeSource struct {
	ch chan *pq.Notification
}

func (s *fakeSource) NotificationChannel() <-chan *pq.Notification { return s.ch }

// yearly keeps the cron schedule out of the way so only explicit wake-ups run.
const yearly = "0 0 0 1 1 *"

func relayCommand(t *testing.T) commands.RelayOutboxCommand {
	cmd, err := commands.NewRelayOutboxCommand(10)
	require.NoError(t, err)
	return cmd
}

func TestOutboxRelayJob_RunsOnStart(t *testing.T) {
	relayer := &countingRelayer{}
	job := jobs.NewOutboxRelayJob(relayer, relayCommand(t), yearly, nil, nil)

	require.NoError(t, job.Start())
	defer job.Stop()

	assert.Eventually(t, func() bool { return relayer.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestOutboxRelayJob_WakesOnNotification(t *testing.T) {
	relayer := &countingRelayer{}
	source := &fakeSource{ch: make(chan *pq.Notification)}
	job := jobs.NewOutboxRelayJob(relayer, relayCommand(t), yearly, source, nil)

	require.NoError(t, job.Start())
	defer job.Stop()
	require.Eventually(t, func() bool { return relayer.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	before := relayer.calls.Load()

	source.ch <- &pq.Notification{Channel: "order_outbox", Extra: "orders.created"}

	assert.Eventually(t, func() bool { return relayer.calls.Load() > before }, time.Second, 10*time.Millisecond)
}

func TestOutboxRelayJob_KeepsRunningAfterFailure(t *testing.T) {
	relayer := &countingRelayer{err: errors.New("broker down")}
	source := &fakeSource{ch: make(chan *pq.Notification)}
	job := jobs.NewOutboxRelayJob(relayer, relayCommand(t), yearly, source, nil)

	require.NoError(t, job.Start())
	defer job.Stop()
	require.Eventually(t, func() bool { return relayer.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)

	source.ch <- nil

	assert.Eventually(t, func() bool { return relayer.calls.Load() >= 2 }, time.Second, 10*time.Millisecond)
}

// blockingRelayer holds its first round until release is closed and records whether the
// round's context was still live when it finished.
type blockingRelayer struct {
	entered   chan struct{}
	release   chan struct{}
	cancelled atomic.Bool
	once      atomic.Bool
}

func newBlockingRelayer() *blockingRelayer {
	return &blockingRelayer{entered: make(chan struct{}), release: make(chan struct{})}
}

func (r *blockingRelayer) Handle(ctx context.Context, _ commands.RelayOutboxCommand) (int, error) {
	if !r.once.CompareAndSwap(false, true) {
		return 0, nil
	}
	close(r.entered)
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	r.cancelled.Store(ctx.Err() != nil)
	return 1, nil
}

func TestOutboxRelayJob_StopLetsRoundFinish(t *testing.T) {
	relayer := newBlockingRelayer()
	job := jobs.NewOutboxRelayJob(relayer, relayCommand(t), yearly, nil, nil)
	require.NoError(t, job.Start())
	<-relayer.entered

	stopped := make(chan struct{})
	go func() {
		job.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a round was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(relayer.release)
	require.Eventually(t, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.False(t, relayer.cancelled.Load())
}

func TestOutboxRelayJob_StopCancelsRoundAfterTimeout(t *testing.T) {
	relayer := newBlockingRelayer()
	job := jobs.NewOutboxRelayJob(relayer, relayCommand(t), yearly, nil, nil).
		WithStopTimeout(20 * time.Millisecond)
	require.NoError(t, job.Start())
	<-relayer.entered

	job.Stop()

	assert.True(t, relayer.cancelled.Load())
}

func TestOutboxRelayJob_InvalidSchedule(t *testing.T) {
	job := jobs.NewOutboxRelayJob(&countingRelayer{}, relayCommand(t), "not a schedule", nil, nil)

	assert.Error(t, job.Start())
}

type stubJob struct {
	name     string
	startErr error
	log      *[]string
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Start() error {
	*j.log = append(*j.log, "start "+j.name)
	return j.startErr
}

func (j *stubJob) Stop() { *j.log = append(*j.log, "stop "+j.name) }

func TestJobManager_StartAndStopInReverse(t *testing.T) {
	var log []string
	manager := jobs.NewJobManager(&stubJob{name: "a", log: &log}, &stubJob{name: "b", log: &log})

	require.NoError(t, manager.StartAll())
	manager.StopAll()

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestJobManager_StartFailureStopsStartedJobs(t *testing.T) {
	var log []string
	manager := jobs.NewJobManager(
		&stubJob{name: "a", log: &log},
		&stubJob{name: "b", log: &log, startErr: errors.New("boom")},
	)

	err := manager.StartAll()

	require.ErrorContains(t, err, "failed to start b job")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, log)
}
