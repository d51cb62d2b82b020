// ABOUTME: Builds task event envelopes and hands them to the broker
// ABOUTME: Publishes are fire-and-forget; broker failures are logged, never returned

package event

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Broker delivers envelopes to the message transport.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
}

// Publisher converts task mutations into envelopes and sends them through
// the broker on detached goroutines. A publish failure never reaches the
// caller: the task mutation is the source of truth, the event is a
// best-effort notification.
type Publisher struct {
	broker  Broker
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewPublisher creates a Publisher. timeout bounds each broker send.
func NewPublisher(broker Broker, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		broker:  broker,
		timeout: timeout,
		logger:  logger,
	}
}

// PublishTaskCreated emits a task.created event with the full task snapshot.
func (p *Publisher) PublishTaskCreated(task Task, userID string) {
	p.publish(TypeTaskCreated, Data{
		TaskID: task.ID,
		UserID: userID,
		Action: ActionCreated,
		Task:   &task,
	})
}

// PublishTaskUpdated emits a task.updated event with the snapshot and the
// set of changed fields.
func (p *Publisher) PublishTaskUpdated(task Task, userID string, changes map[string]any) {
	p.publish(TypeTaskUpdated, Data{
		TaskID:  task.ID,
		UserID:  userID,
		Action:  ActionUpdated,
		Task:    &task,
		Changes: changes,
	})
}

// PublishTaskCompleted emits a task.completed event with the full snapshot.
func (p *Publisher) PublishTaskCompleted(task Task, userID string) {
	p.publish(TypeTaskCompleted, Data{
		TaskID: task.ID,
		UserID: userID,
		Action: ActionCompleted,
		Task:   &task,
	})
}

// PublishTaskDeleted emits a task.deleted event carrying only the task ID.
func (p *Publisher) PublishTaskDeleted(taskID, userID string) {
	p.publish(TypeTaskDeleted, Data{
		TaskID: taskID,
		UserID: userID,
		Action: ActionDeleted,
	})
}

// publish constructs the envelope synchronously and performs the broker
// send on its own goroutine so the mutation path never blocks on broker I/O.
func (p *Publisher) publish(eventType string, data Data) {
	env := NewEnvelope(eventType, data)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.broker.Publish(ctx, env); err != nil {
			p.logger.Error("failed to publish task event",
				"event_id", env.ID,
				"type", env.Type,
				"user_id", env.Data.UserID,
				"error", err,
			)
			return
		}

		p.logger.Info("published task event",
			"event_id", env.ID,
			"type", env.Type,
			"user_id", env.Data.UserID,
		)
	}()
}

// Close waits for in-flight broker sends to finish. Used during shutdown
// and by tests that need publish results to be observable.
func (p *Publisher) Close() {
	p.wg.Wait()
}
