package bus

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/lead-enrichment/internal/archive"
	"github.com/sells-group/lead-enrichment/internal/config"
	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/pipeline"
	"github.com/sells-group/lead-enrichment/internal/track"
)

// ReasonUnknownEventType is recorded on dead-lettered messages whose type is
// outside the accepted set.
const ReasonUnknownEventType = "UnknownEventType"

// Listener consumes lead events, runs the enrichment pipeline, publishes the
// results, and drives the acknowledgment protocol. At most MaxConcurrency
// messages are processed at once; further deliveries wait on the semaphore
// without blocking the receive loop.
type Listener struct {
	receiver     Receiver
	publisher    Publisher
	orchestrator *pipeline.Orchestrator
	buffer       *archive.Buffer
	tracker      track.Tracker

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	ackWait      time.Duration
	renewCeiling time.Duration
	parallel     bool
}

// NewListener wires the listener from its collaborators.
func NewListener(
	receiver Receiver,
	publisher Publisher,
	orchestrator *pipeline.Orchestrator,
	buffer *archive.Buffer,
	tracker track.Tracker,
	busCfg config.BusConfig,
	cfg config.ListenerConfig,
) *Listener {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Listener{
		receiver:     receiver,
		publisher:    publisher,
		orchestrator: orchestrator,
		buffer:       buffer,
		tracker:      tracker,
		sem:          semaphore.NewWeighted(int64(maxConcurrency)),
		ackWait:      busCfg.AckWait(),
		renewCeiling: time.Duration(cfg.LockRenewCeilingSecs) * time.Second,
		parallel:     cfg.ParallelStages,
	}
}

// Run consumes until ctx is canceled, then drains: delivery stops first and
// every in-flight message runs to completion before Run returns.
func (l *Listener) Run(ctx context.Context) error {
	stop, err := l.receiver.Receive(ctx, l.dispatch)
	if err != nil {
		return err
	}

	<-ctx.Done()
	stop()
	l.wg.Wait()

	zap.L().Info("listener drained")
	return nil
}

// dispatch hands a delivery to a worker goroutine. The semaphore is acquired
// inside the goroutine so the receive callback returns immediately and the
// broker keeps feeding deliveries up to its own pending limit.
func (l *Listener) dispatch(ctx context.Context, msg Message) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		if err := l.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer l.sem.Release(1)

		// Detached from the receive context so that shutdown drains
		// in-flight messages instead of aborting them mid-pipeline.
		l.Handle(context.WithoutCancel(ctx), msg)
	}()
}

// Handle processes one delivery end to end. Acknowledgment discipline:
//
//   - unparseable body: no ack, the broker redelivers after the deadline
//   - own event (loop guard): ack immediately
//   - unknown event type: dead-letter with a reason
//   - unusable payload: the failure rides in the body, the raw event is
//     still archived and tracked, and the message acks
//   - publish failure: no ack, redeliver
//   - otherwise: ack after publishing; archival and tracking failures
//     never block the ack
func (l *Listener) Handle(ctx context.Context, msg Message) {
	stopRenewal := l.keepLockAlive(msg)
	defer stopRenewal()

	log := zap.L().With(zap.String("message_id", msg.ID()), zap.String("subject", msg.Subject()))

	var evt model.IncomingEvent
	if err := json.Unmarshal(msg.Data(), &evt); err != nil {
		// Leave unacked: transient corruption gets another delivery, and
		// MaxDeliver caps how often we see a genuinely broken body.
		log.Error("unparseable event body", zap.Error(err))
		return
	}
	log = log.With(zap.String("event_id", evt.EventID), zap.String("event_type", evt.EventType))

	if evt.SourceSystem == model.SourceSystem {
		// Our own published event echoed back by the overlapping
		// subscription. Drop silently.
		if err := msg.Ack(); err != nil {
			log.Warn("ack failed on own event", zap.Error(err))
		}
		return
	}

	eventType, ok := model.ParseEventType(evt.EventType)
	if !ok {
		log.Warn("unknown event type, dead-lettering")
		if err := msg.DeadLetter(ReasonUnknownEventType); err != nil {
			log.Error("dead-letter failed", zap.Error(err))
		}
		return
	}

	result := &model.PipelineResult{}
	var stages []model.StageName

	lead, leadErr := model.LeadFromEvent(evt.Data)
	if leadErr != nil {
		// The payload cannot build a lead, so enrichment is impossible,
		// but archival of the raw event still happens below.
		log.Warn("unusable lead payload, skipping enrichment", zap.Error(leadErr))
	} else {
		log = log.With(zap.String("lead_id", lead.ID))
		stages = eventType.Stages()
		if l.parallel {
			result = l.orchestrator.RunParallel(ctx, lead, stages)
		} else {
			result = l.orchestrator.Run(ctx, lead, stages)
		}
	}

	enriched := buildEnrichedBody(evt.Data, result, stages)
	if leadErr != nil {
		enriched["enrichment_error"] = map[string]string{"pipeline": leadErr.Error()}
	}

	if leadErr == nil {
		if err := l.publishResults(ctx, &evt, lead, result, stages, enriched); err != nil {
			// Without the published results the work is lost, so leave the
			// message unacked and let redelivery retry the whole pipeline.
			log.Error("publish failed, leaving message for redelivery", zap.Error(err))
			return
		}
	}

	completed := result.Completed(model.AllStages())

	// Archival and tracking are best-effort side channels; they run
	// concurrently with the ack and never delay it.
	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.archiveEvent(&evt, enriched)
	}()
	go func() {
		defer l.wg.Done()
		l.trackEvent(context.Background(), msg, &evt, lead, completed)
	}()

	if err := msg.Ack(); err != nil {
		log.Error("ack failed", zap.Error(err))
		return
	}
	log.Info("event processed")
}

// keepLockAlive extends the message lock every half ack-wait until the
// returned stop function is called or the renewal ceiling passes. Pipelines
// slower than the ceiling lose the lock and the message redelivers.
func (l *Listener) keepLockAlive(msg Message) (stop func()) {
	if l.ackWait <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(l.ackWait / 2)
		defer ticker.Stop()

		deadline := time.Now().Add(l.renewCeiling)
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				if l.renewCeiling > 0 && now.After(deadline) {
					zap.L().Warn("lock renewal ceiling reached", zap.String("message_id", msg.ID()))
					return
				}
				if err := msg.InProgress(); err != nil {
					zap.L().Warn("lock renewal failed", zap.Error(err))
					return
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// buildEnrichedBody merges stage outputs into a copy of the original event
// data. Failures are recorded under enrichment_error; a failed stage still
// contributes its partial payload when it produced one.
func buildEnrichedBody(data map[string]any, result *model.PipelineResult, stages []model.StageName) map[string]any {
	enriched := make(map[string]any, len(data)+len(stages)+1)
	maps.Copy(enriched, data)

	enrichment := make(map[string]any, len(stages))
	errs := make(map[string]string)
	for _, name := range stages {
		res := result.Get(name)
		if res == nil {
			continue
		}
		if res.Payload != nil {
			enrichment[string(name)] = res.Payload
		}
		if res.Failed() {
			errs[string(name)] = res.Error
		}
	}

	if len(enrichment) > 0 {
		enriched["enrichment"] = enrichment
	}
	if len(errs) > 0 {
		enriched["enrichment_error"] = errs
	}
	return enriched
}

// publishResults announces each successful stage. The terminal completed
// event only follows a full pipeline: all three stages ran and succeeded.
// The first publish error aborts; the caller leaves the message unacked.
func (l *Listener) publishResults(
	ctx context.Context,
	evt *model.IncomingEvent,
	lead *model.Lead,
	result *model.PipelineResult,
	stages []model.StageName,
	enriched map[string]any,
) error {
	correlationID := evt.CorrelationID
	if correlationID == "" {
		correlationID = lead.ID
	}

	for _, name := range stages {
		res := result.Get(name)
		if res == nil || res.Failed() {
			continue
		}
		if err := l.publishEvent(ctx, model.EnrichedEventType(name), correlationID, enriched); err != nil {
			return err
		}
	}

	if result.Completed(model.AllStages()) {
		if err := l.publishEvent(ctx, model.EventPipelineCompleted, correlationID, enriched); err != nil {
			return err
		}
	}
	return nil
}

func (l *Listener) publishEvent(ctx context.Context, t model.EventType, correlationID string, data map[string]any) error {
	out := model.NewOutgoingEvent(t, correlationID, data)
	body, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return l.publisher.Publish(ctx, string(t), body)
}

// archiveEvent projects the enriched event into the warehouse buffer.
func (l *Listener) archiveEvent(evt *model.IncomingEvent, enriched map[string]any) {
	if l.buffer == nil {
		return
	}
	row, err := archive.BuildRow(evt, enriched)
	if err != nil {
		zap.L().Warn("archive row build failed", zap.String("event_id", evt.EventID), zap.Error(err))
		return
	}
	l.buffer.Add(context.Background(), row)
}

// trackEvent forwards one analytics event per processed message, named after
// the subject it arrived on and stamped with the broker enqueue time.
func (l *Listener) trackEvent(ctx context.Context, msg Message, evt *model.IncomingEvent, lead *model.Lead, completed bool) {
	if l.tracker == nil {
		return
	}

	props := map[string]any{
		"eventId":       evt.EventID,
		"eventType":     evt.EventType,
		"correlationId": evt.CorrelationID,
		"completed":     completed,
	}
	if lead != nil {
		props["leadId"] = lead.ID
	}

	err := l.tracker.Track(ctx, track.Event{
		UserID:     trackIdentity(evt, lead),
		Event:      msg.Subject(),
		Properties: props,
		Timestamp:  msg.Timestamp(),
	})
	if err != nil {
		zap.L().Warn("tracking call failed", zap.String("event_id", evt.EventID), zap.Error(err))
	}
}

// trackIdentity picks the analytics user ID: the lead email, then the
// explicit user identifiers, then the lead itself, then whatever email the
// raw payload carries when no lead could be built.
func trackIdentity(evt *model.IncomingEvent, lead *model.Lead) string {
	if lead != nil {
		for _, id := range []string{lead.Identifiers.Email, lead.Identifiers.UserID, lead.Identifiers.AnonymousID, lead.ID} {
			if id != "" {
				return id
			}
		}
	}
	if email, ok := evt.Data["leadEmail"].(string); ok {
		return email
	}
	return ""
}
