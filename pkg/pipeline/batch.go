package pipeline

import (
	"context"
	"runtime"
	"sync"

	"shieldx-cti/pkg/event"
)

// ProcessBatch runs events through a pool of workers sharing the loaded
// models. Results keep input order. Events not yet dispatched when ctx is
// cancelled come back as failed snapshots carrying the context error, so
// every input still yields a report.
func (o *Orchestrator) ProcessBatch(ctx context.Context, events []event.Event, workers int) []State {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(events) {
		workers = len(events)
	}
	out := make([]State, len(events))
	done := make([]bool, len(events))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = o.Process(ctx, events[i])
				done[i] = true
			}
		}()
	}

dispatch:
	for i := range events {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	for i, ok := range done {
		if !ok {
			out[i] = o.cancelled(events[i], ctx.Err())
		}
	}
	return out
}

func (o *Orchestrator) cancelled(ev event.Event, err error) State {
	id := ev.ID()
	if id == "" {
		id = o.newID()
	}
	s := NewState(ev, id, o.now()).fail(StageStart, err.Error())
	s = o.respond(o.assess(s))
	s = s.advance(StageDone)
	s.Status = StatusFailed
	return s
}
