package hook

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ayusman/wavebuddy/internal/dialogue"
	"github.com/ayusman/wavebuddy/internal/log"
)

// MaxConcurrent caps hook processes running at once. Events arriving while
// every slot is taken are dropped for that hook.
const MaxConcurrent = 4

var metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wavebuddy_hook_runs_total",
	Help: "Hook runs by hook and outcome.",
}, []string{"hook", "outcome"})

// Dispatcher forwards dialogue events to the hooks that asked for them.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	slots    chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the hooks m has discovered.
func NewDispatcher(m *Manager, e *Executor) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		manager:  m,
		executor: e,
		slots:    make(chan struct{}, MaxConcurrent),
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.Component("hook"),
	}
}

// HandleEvent starts every interested hook in the background. It is
// registered as a dialogue controller subscriber and never blocks.
func (d *Dispatcher) HandleEvent(e dialogue.Event) {
	if d.ctx.Err() != nil {
		return
	}

	typ := string(e.Type)
	for _, h := range d.manager.List() {
		if !h.Manifest.Wants(typ) {
			continue
		}

		select {
		case d.slots <- struct{}{}:
		default:
			metricRuns.WithLabelValues(h.Manifest.Name, "dropped").Inc()
			d.logger.Warn("hook busy, event dropped", "hook", h.Manifest.Name, "event", typ)
			continue
		}

		d.wg.Add(1)
		go func(h *Hook) {
			defer func() {
				<-d.slots
				d.wg.Done()
			}()
			d.run(h, NewRequest(e))
		}(h)
	}
}

// Close cancels running hooks and waits for them to exit.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// Wait blocks until every started hook has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(h *Hook, req *Request) {
	resp, err := d.executor.Execute(d.ctx, h, req)
	switch {
	case err != nil:
		metricRuns.WithLabelValues(h.Manifest.Name, "error").Inc()
		d.logger.Warn("hook failed", "hook", h.Manifest.Name, "event", req.Event, "error", err)
	case !resp.Success:
		metricRuns.WithLabelValues(h.Manifest.Name, "rejected").Inc()
		d.logger.Warn("hook reported failure", "hook", h.Manifest.Name, "event", req.Event, "error", resp.Error)
	default:
		metricRuns.WithLabelValues(h.Manifest.Name, "ok").Inc()
		d.logger.Debug("hook ran", "hook", h.Manifest.Name, "event", req.Event)
	}
}

// NewRequest converts a dialogue event to the hook wire format.
func NewRequest(e dialogue.Event) *Request {
	req := &Request{
		Event:   string(e.Type),
		Time:    e.Time,
		Gesture: string(e.Gesture),
		Source:  string(e.Source),
		Text:    e.Text,
	}
	if e.Type == dialogue.EventState {
		req.State = e.State.String()
	}
	if ex := e.Exchange; ex != nil {
		req.Exchange = &Exchange{
			Prompt:     ex.Utterance.Text,
			Response:   ex.Response,
			Language:   ex.Language,
			Spoken:     ex.Spoken,
			DurationMs: ex.Duration.Milliseconds(),
		}
		if ex.Err != nil {
			req.Exchange.Error = ex.Err.Error()
		}
		if req.Gesture == "" {
			req.Gesture = string(ex.Utterance.Gesture)
		}
	}
	return req
}
