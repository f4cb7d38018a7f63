package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"megabot.app/onboarding/internal/onboarding"
	"megabot.app/onboarding/internal/queue"
	"megabot.app/onboarding/internal/worker"
)

func startTask(id string, attempt int) queue.Message {
	return queue.Message{
		ID: id,
		Task: queue.Task{
			TaskType: queue.TaskTypeStartOnboarding,
			Attempt:  attempt,
			UserID:   "u1",
		},
	}
}

var _ = Describe("Worker", func() {
	var (
		ctx      context.Context
		consumer *mockConsumer
	)

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &mockConsumer{}
	})

	Describe("ProcessMessage", func() {
		It("acks after a successful dispatch", func() {
			w := worker.New(consumer, dispatchFunc(func(context.Context, queue.Message) error { return nil }), worker.Config{})

			Expect(w.ProcessMessage(ctx, startTask("1-0", 1))).To(Succeed())
			Expect(consumer.acked).To(Equal([]string{"1-0"}))
			Expect(consumer.requeued).To(BeEmpty())
		})

		It("still succeeds when the ack fails", func() {
			consumer.ackErr = errors.New("redis gone")
			w := worker.New(consumer, dispatchFunc(func(context.Context, queue.Message) error { return nil }), worker.Config{})

			Expect(w.ProcessMessage(ctx, startTask("1-0", 1))).To(Succeed())
		})

		It("requeues transient failures below the attempt limit", func() {
			w := worker.New(consumer, dispatchFunc(func(context.Context, queue.Message) error {
				return fmt.Errorf("%w: discord timeout", onboarding.ErrCollaboratorUnavailable)
			}), worker.Config{MaxAttempts: 3})

			err := w.ProcessMessage(ctx, startTask("1-0", 2))
			Expect(err).To(MatchError(onboarding.ErrCollaboratorUnavailable))
			Expect(consumer.requeued).To(HaveLen(1))
			Expect(consumer.requeued[0].errMsg).To(ContainSubstring("discord timeout"))
			Expect(consumer.dlq).To(BeEmpty())
			Expect(consumer.acked).To(BeEmpty())
		})

		It("dead-letters once the attempt limit is reached", func() {
			w := worker.New(consumer, dispatchFunc(func(context.Context, queue.Message) error {
				return errors.New("still failing")
			}), worker.Config{MaxAttempts: 3})

			Expect(w.ProcessMessage(ctx, startTask("1-0", 3))).NotTo(Succeed())
			Expect(consumer.dlq).To(HaveLen(1))
			Expect(consumer.requeued).To(BeEmpty())
		})

		It("dead-letters permanent failures immediately", func() {
			w := worker.New(consumer, dispatchFunc(func(context.Context, queue.Message) error {
				return fmt.Errorf("saving: %w", onboarding.ErrInvariantViolation)
			}), worker.Config{MaxAttempts: 3})

			Expect(w.ProcessMessage(ctx, startTask("1-0", 1))).NotTo(Succeed())
			Expect(consumer.dlq).To(HaveLen(1))
			Expect(consumer.requeued).To(BeEmpty())
		})

		It("recovers from a panicking handler", func() {
			w := worker.New(consumer, dispatchFunc(func(context.Context, queue.Message) error {
				panic("nil map")
			}), worker.Config{MaxAttempts: 3})

			err := w.ProcessMessage(ctx, startTask("1-0", 1))
			Expect(err).To(MatchError(ContainSubstring("panic: nil map")))
			Expect(consumer.requeued).To(HaveLen(1))
		})
	})

	Describe("Run", func() {
		It("processes batches until stopped", func() {
			var reads atomic.Int32
			consumer.readFn = func(context.Context) ([]queue.Message, error) {
				if reads.Add(1) == 1 {
					return []queue.Message{startTask("1-0", 1), startTask("2-0", 1)}, nil
				}
				time.Sleep(5 * time.Millisecond)
				return nil, nil
			}
			w := worker.New(consumer, dispatchFunc(func(context.Context, queue.Message) error { return nil }), worker.Config{})

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			Eventually(consumer.ackedIDs).Should(Equal([]string{"1-0", "2-0"}))
			w.Stop()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("backs off after read errors and returns on cancellation", func() {
			runCtx, cancel := context.WithCancel(ctx)
			var reads atomic.Int32
			consumer.readFn = func(context.Context) ([]queue.Message, error) {
				reads.Add(1)
				return nil, errors.New("connection refused")
			}
			w := worker.New(consumer, dispatchFunc(func(context.Context, queue.Message) error { return nil }), worker.Config{ErrorBackoff: 10 * time.Millisecond})

			done := make(chan error, 1)
			go func() { done <- w.Run(runCtx) }()

			Eventually(reads.Load).Should(BeNumerically(">=", 2))
			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})
	})
})
