package inverter

import (
	"context"
	"log"
	"time"

	"github.com/pvplanner/pvplanner/store"
)

// energySink is the subset of the store the poller writes finished hours to.
type energySink interface {
	ImportRealEnergy(ctx context.Context, series store.Series, rows []store.EnergyRecord) (int, error)
}

// Poller samples the plant energy counter on a fixed interval and stores
// every finished hour as a real produced-energy row.
type Poller struct {
	sampler  *Sampler
	sink     energySink
	interval time.Duration
	logger   *log.Logger
	stopChan chan struct{}

	// now is swapped in tests.
	now func() time.Time
}

// NewPoller creates a poller over the sampler, writing finished hours to
// the sink.
func NewPoller(sampler *Sampler, sink energySink, interval time.Duration, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		sampler:  sampler,
		sink:     sink,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Run blocks until the context is cancelled or Stop is called. The first
// sample is taken immediately to establish the counter baseline.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Printf("Inverter: polling energy counter every %v", p.interval)
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollOnce(ctx)
		case <-ctx.Done():
			p.logger.Printf("Inverter: stopped due to context cancellation")
			return
		case <-p.stopChan:
			p.logger.Printf("Inverter: stopped due to stop signal")
			return
		}
	}
}

// Stop signals the poller to exit after the current sample.
func (p *Poller) Stop() {
	select {
	case <-p.stopChan:
	default:
		close(p.stopChan)
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	rec, err := p.sampler.Sample(p.now())
	if err != nil {
		p.logger.Printf("Inverter: counter read failed: %v", err)
		return
	}
	if rec == nil {
		return
	}

	if _, err := p.sink.ImportRealEnergy(ctx, store.Produced, []store.EnergyRecord{*rec}); err != nil {
		p.logger.Printf("Inverter: failed to store hour %d of %s: %v",
			rec.Hour, rec.Date.Format("2006-01-02"), err)
		return
	}
	p.logger.Printf("Inverter: recorded %.3f kWh for %s hour %d",
		*rec.Value, rec.Date.Format("2006-01-02"), rec.Hour)
}
