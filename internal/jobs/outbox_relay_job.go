package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"orders/internal/core/application/usecases/commands"

	"github.com/lib/pq"
	"github.com/robfig/cron/v3"
)

const (
	DefaultRelaySchedule = "*/5 * * * * *"
	DefaultStopTimeout   = 15 * time.Second
)

// OutboxRelayer is satisfied by commands.RelayOutboxCommandHandler.
type OutboxRelayer interface {
	Handle(ctx context.Context, cmd commands.RelayOutboxCommand) (int, error)
}

// NotificationSource is satisfied by *pq.Listener.
type NotificationSource interface {
	NotificationChannel() <-chan *pq.Notification
}

// OutboxRelayJob runs the outbox relay on a schedule and on every outbox notification.
type OutboxRelayJob struct {
	relayer  OutboxRelayer
	cmd      commands.RelayOutboxCommand
	schedule string
	source   NotificationSource
	cron     *cron.Cron
	logger   *slog.Logger

	wake        chan struct{}
	stopping    chan struct{}
	stopTimeout time.Duration
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewOutboxRelayJob creates the job. source may be nil, in which case only the schedule
// triggers runs.
func NewOutboxRelayJob(
	relayer OutboxRelayer,
	cmd commands.RelayOutboxCommand,
	schedule string,
	source NotificationSource,
	logger *slog.Logger,
) *OutboxRelayJob {
	if schedule == "" {
		schedule = DefaultRelaySchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxRelayJob{
		relayer:  relayer,
		cmd:      cmd,
		schedule: schedule,
		source:   source,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger.With("component", "outbox_relay_job"),
		wake:     make(chan struct{}, 1),

		stopTimeout: DefaultStopTimeout,
	}
}

// WithStopTimeout bounds how long Stop lets an in-flight round run before cancelling it.
func (j *OutboxRelayJob) WithStopTimeout(d time.Duration) *OutboxRelayJob {
	if d > 0 {
		j.stopTimeout = d
	}
	return j
}

func (j *OutboxRelayJob) Name() string {
	return "outbox relay"
}

// Start registers the schedule and starts the worker. One run happens right away to
// flush rows left over from a previous process.
func (j *OutboxRelayJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.trigger); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.stopping = make(chan struct{})

	j.wg.Add(1)
	go j.work(ctx)

	if j.source != nil {
		j.wg.Add(1)
		go j.listen(ctx)
	}

	j.cron.Start()
	j.trigger()
	j.logger.InfoContext(ctx, "Outbox relay job started", "schedule", j.schedule, "listening", j.source != nil)
	return nil
}

// Stop lets a running relay round finish with a live context. The round is cancelled only
// if it outlasts the stop timeout.
func (j *OutboxRelayJob) Stop() {
	<-j.cron.Stop().Done()
	if j.cancel == nil {
		return
	}
	close(j.stopping)

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(j.stopTimeout):
		j.logger.WarnContext(context.Background(), "Outbox relay round cancelled on stop", "timeout", j.stopTimeout)
		j.cancel()
		<-done
	}
	j.cancel()
	j.cancel = nil
	j.logger.InfoContext(context.Background(), "Outbox relay job stopped")
}

func (j *OutboxRelayJob) trigger() {
	select {
	case j.wake <- struct{}{}:
	default:
	}
}

func (j *OutboxRelayJob) listen(ctx context.Context) {
	defer j.wg.Done()
	notifications := j.source.NotificationChannel()
	for {
		select {
		case <-j.stopping:
			return
		case <-ctx.Done():
			return
		case _, ok := <-notifications:
			if !ok {
				return
			}
			j.trigger()
		}
	}
}

func (j *OutboxRelayJob) work(ctx context.Context) {
	defer j.wg.Done()
	for {
		select {
		case <-j.stopping:
			return
		case <-j.wake:
			sent, err := j.relayer.Handle(ctx, j.cmd)
			if err != nil && ctx.Err() == nil {
				j.logger.ErrorContext(ctx, "Outbox relay failed", "error", err, "sent", sent)
				continue
			}
			if sent > 0 {
				j.logger.DebugContext(ctx, "Outbox relayed", "sent", sent)
			}
		}
	}
}
