package worker_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/worker"
)

type memQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *memQueue) Push(_ context.Context, items ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return nil
}

func (q *memQueue) Pop(context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false, nil
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it, true, nil
}

func (q *memQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

var _ = Describe("Poller", func() {
	It("processes every item in FIFO order and survives failures", func() {
		q := &memQueue{items: []string{"a", "b", "c", "d", "e", "f", "g"}}

		var (
			mu   sync.Mutex
			seen []string
		)
		process := func(_ context.Context, item string) error {
			mu.Lock()
			seen = append(seen, item)
			mu.Unlock()
			switch item {
			case "b":
				return errors.New("classifier down")
			case "c":
				panic("boom")
			}
			return nil
		}

		p := worker.NewPoller(q, process, worker.PollerConfig{
			Name:         "queue:to-classify",
			PollInterval: 10 * time.Millisecond,
			BatchSize:    5,
		})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = p.Run(context.Background())
		}()

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), seen...)
		}).Should(Equal([]string{"a", "b", "c", "d", "e", "f", "g"}))

		// Items pushed later are picked up on the next poll.
		Expect(q.Push(context.Background(), "h")).To(Succeed())
		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(seen)
		}).Should(Equal(8))

		p.Stop()
		Eventually(done).Should(BeClosed())
		n, _ := q.Len(context.Background())
		Expect(n).To(BeZero())
	})
})
