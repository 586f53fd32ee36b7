package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

type recordingPoller struct {
	mu     sync.Mutex
	kinds  []nodes.PollKind
	active int
	maxed  int
}

func (p *recordingPoller) Poll(ctx context.Context, kind nodes.PollKind) error {
	p.mu.Lock()
	p.active++
	if p.active > p.maxed {
		p.maxed = p.active
	}
	p.kinds = append(p.kinds, kind)
	p.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	p.mu.Lock()
	p.active--
	p.mu.Unlock()

	return errors.New("vendor unavailable")
}

func (p *recordingPoller) count(kind nodes.PollKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, k := range p.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestThatBothPollKindsAreDeliveredSerially(t *testing.T) {
	is := is.New(t)

	p := &recordingPoller{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Run(ctx, p, Config{ShortPoll: 5 * time.Millisecond, LongPoll: 15 * time.Millisecond}, zerolog.Nop())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for (p.count(nodes.ShortPoll) < 3 || p.count(nodes.LongPoll) < 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done

	is.True(p.count(nodes.ShortPoll) >= 3)
	is.True(p.count(nodes.LongPoll) >= 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	is.Equal(p.maxed, 1) // polls must never overlap
}

func TestThatRunReturnsWhenContextIsCancelled(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &recordingPoller{}
	Run(ctx, p, Config{}, zerolog.Nop())

	is.Equal(p.count(nodes.ShortPoll), 0)
}
