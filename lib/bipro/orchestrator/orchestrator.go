// Package orchestrator drives the full per-carrier shipment loop of spec
// §4.6: list pending shipments, fetch and persist each through a bounded
// worker pool, then acknowledge — with cooperative cancellation and an
// ordering guarantee that acknowledge never precedes durable persistence.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/atlas-broker/atlas/lib/archive"
	"github.com/atlas-broker/atlas/lib/bipro/ratelimit"
	"github.com/atlas-broker/atlas/lib/bipro/transfer"
	"github.com/atlas-broker/atlas/lib/scheduler"
)

var log = logrus.WithFields(logrus.Fields{
	trace.Component: "bipro:orchestrator",
})

// DefaultPerCarrierConcurrency and DefaultGlobalConcurrency are the bounds
// of spec §4.6 ("default 5 per carrier, 20 globally").
const (
	DefaultPerCarrierConcurrency = 5
	DefaultGlobalConcurrency     = 20
)

// Progress is emitted after each shipment completes (success or failure),
// per spec §4.6 point 3.
type Progress struct {
	Carrier     string
	Done        int
	Total       int
	CurrentName string
}

// ProgressFunc receives progress events. Implementations must not block for
// long, since the orchestrator calls it synchronously from worker
// goroutines.
type ProgressFunc func(Progress)

// CarrierRun is one carrier's client, rate limiter, and list filter for a
// single orchestrator pass.
type CarrierRun struct {
	Carrier string
	Client  *transfer.Client
	Limiter *ratelimit.Limiter
	Filter  transfer.ListFilter
}

// Result records the outcome for one shipment.
type Result struct {
	Carrier    string
	ShipmentID string
	Err        error
}

// Orchestrator runs CarrierRuns through a bounded pool and a shared archive.
type Orchestrator struct {
	Archive  archive.Store
	Pool     *scheduler.Pool
	Progress ProgressFunc
}

// New builds an Orchestrator with the spec's default concurrency bounds.
func New(store archive.Store, progress ProgressFunc) *Orchestrator {
	return &Orchestrator{
		Archive:  store,
		Pool:     scheduler.New(DefaultGlobalConcurrency, DefaultPerCarrierConcurrency),
		Progress: progress,
	}
}

// Run drives every carrier's shipment loop concurrently (bounded by o.Pool)
// and returns one Result per shipment actually listed, across all carriers.
// A failure on one shipment never stops the others (spec §4.6 point 4).
func (o *Orchestrator) Run(ctx context.Context, runs []CarrierRun) ([]Result, error) {
	var (
		mu      sync.Mutex
		results []Result
		wg      sync.WaitGroup
	)

	for _, run := range runs {
		run := run
		wg.Add(1)
		go func() {
			defer wg.Done()
			carrierResults, err := o.runCarrier(ctx, run)
			if err != nil {
				log.WithError(err).WithField("carrier", run.Carrier).Warn("listing shipments failed")
			}
			mu.Lock()
			results = append(results, carrierResults...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return results, trace.Wrap(ctx.Err())
	}
	return results, nil
}

func (o *Orchestrator) runCarrier(ctx context.Context, run CarrierRun) ([]Result, error) {
	shipments, err := run.Client.List(ctx, run.Filter)
	if err != nil {
		return nil, trace.Wrap(err, "listing shipments for %s", run.Carrier)
	}

	total := len(shipments)
	results := make([]Result, total)
	for i, shipment := range shipments {
		results[i] = Result{Carrier: run.Carrier, ShipmentID: shipment.ID}
	}

	jobs := make([]scheduler.Job, total)
	for i, shipment := range shipments {
		i, shipment := i, shipment
		jobs[i] = scheduler.Job{
			Key: run.Carrier,
			Run: func(ctx context.Context) error {
				err := o.processShipment(ctx, run, shipment)
				results[i] = Result{Carrier: run.Carrier, ShipmentID: shipment.ID, Err: err}
				if o.Progress != nil {
					o.Progress(Progress{
						Carrier:     run.Carrier,
						Done:        i + 1,
						Total:       total,
						CurrentName: shipment.ID,
					})
				}
				return err
			},
		}
	}
	scheduler.RunAll(ctx, o.Pool, jobs)
	return results, nil
}

// processShipment implements spec §4.6 point 2's five-step sequence,
// checking for cancellation at each step boundary, and honors the ordering
// guarantee: acknowledge is only ever reached once every document and the
// raw envelope have been durably persisted.
func (o *Orchestrator) processShipment(ctx context.Context, run CarrierRun, shipment transfer.ShipmentInfo) error {
	if err := ctx.Err(); err != nil {
		return trace.Wrap(err)
	}

	if run.Limiter != nil {
		if err := run.Limiter.Acquire(ctx); err != nil {
			return trace.Wrap(err, "rate limiter acquire for shipment %s", shipment.ID)
		}
	}

	if err := ctx.Err(); err != nil {
		return trace.Wrap(err)
	}

	content, err := run.Client.Get(ctx, shipment.ID)
	if err != nil {
		o.reportLimiter(run, err)
		return trace.Wrap(err, "fetching shipment %s", shipment.ID)
	}
	o.reportLimiter(run, nil)

	if err := ctx.Err(); err != nil {
		return trace.Wrap(err)
	}

	if err := o.persist(ctx, run.Carrier, shipment, content); err != nil {
		return trace.Wrap(err, "persisting shipment %s", shipment.ID)
	}

	if err := ctx.Err(); err != nil {
		return trace.Wrap(err)
	}

	if err := run.Client.Acknowledge(ctx, shipment.ID); err != nil {
		return trace.Wrap(err, "acknowledging shipment %s", shipment.ID)
	}
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, carrierName string, shipment transfer.ShipmentInfo, content transfer.ShipmentContent) error {
	for _, doc := range content.Documents {
		if doc.MissingPart {
			return trace.BadParameter("shipment %s document %s has an unresolved MTOM part", shipment.ID, doc.Filename)
		}
		if _, err := o.Archive.Upload(ctx, doc.Filename, "shipment_document", archive.BoxShipmentDocument, doc.Content); err != nil {
			return trace.Wrap(err, "persisting document %s", doc.Filename)
		}
	}
	envelopeName := fmt.Sprintf("%s-%s.xml", carrierName, shipment.ID)
	if _, err := o.Archive.Upload(ctx, envelopeName, "raw_envelope", archive.BoxRawEnvelope, content.RawEnvelope); err != nil {
		return trace.Wrap(err, "persisting raw envelope")
	}
	return nil
}

// reportLimiter classifies a transfer error into rate-limiter feedback so
// the adaptive limiter of spec §4.5 backs off on throttling without the
// caller threading classification logic through every call site.
func (o *Orchestrator) reportLimiter(run CarrierRun, err error) {
	if run.Limiter == nil {
		return
	}
	if err == nil {
		run.Limiter.Report(ratelimit.FeedbackOK, 0)
		return
	}
	kind, ok := transfer.ClassifyOf(err)
	if !ok {
		return
	}
	switch kind {
	case transfer.KindThrottled:
		run.Limiter.Report(ratelimit.FeedbackThrottled, transfer.RetryAfterOf(err))
	case transfer.KindTransient:
		run.Limiter.Report(ratelimit.FeedbackTransient, 0)
	}
}
