package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/extraction"
	"github.com/yungbote/valence-backend/internal/patterns"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/routing"
	"github.com/yungbote/valence-backend/internal/schema"
)

// State is how far a run got. Persistence never starts before validation
// passes in full.
type State string

const (
	StatePending      State = "pending"
	StateIntrospected State = "introspected"
	StateValidated    State = "validated"
	StateRouted       State = "routed"
	StatePersisted    State = "persisted"
)

// SchemaSource is the cached catalog view the engine works from.
type SchemaSource interface {
	Current(ctx context.Context) (*schema.Catalog, error)
	EnsureFresh(ctx context.Context) (*schema.Catalog, error)
}

// FactStore is the write side of the graph.
type FactStore interface {
	EnsureAnchor(ctx context.Context, anchor domain.AnchorRef) error
	StoreScalar(ctx context.Context, anchorKey string, fv domain.FieldValue) error
	StoreApplicability(ctx context.Context, anchorKey string, fv domain.FieldValue) error
	StoreEntity(ctx context.Context, cat *schema.Catalog, anchorKey, baseType string, rec *domain.EntityRecord) ([]string, error)
	StorePatternFlag(ctx context.Context, cat *schema.Catalog, anchorKey, flagName string, value bool) error
}

// Engine drives one extraction through introspection, validation, routing,
// and persistence, then recomputes the anchor's declared pattern flags.
type Engine struct {
	schemas  SchemaSource
	store    FactStore
	reader   patterns.FactReader
	registry *patterns.Registry
	source   extraction.Source
	log      *logger.Logger

	regMu      sync.Mutex
	regVersion string
}

func New(schemas SchemaSource, store FactStore, reader patterns.FactReader, registry *patterns.Registry, source extraction.Source, log *logger.Logger) *Engine {
	return &Engine{
		schemas:  schemas,
		store:    store,
		reader:   reader,
		registry: registry,
		source:   source,
		log:      log.With("component", "Engine"),
	}
}

// Request is one extraction to run. Raw carries a pre-extracted record; when
// nil, DocumentText is sent through the configured extraction source.
type Request struct {
	DealID        string
	ProvisionType string
	DocumentText  string
	Raw           domain.RawRecord
}

// AnchorKey derives the stable anchor identity for a request.
func (r Request) AnchorKey() string {
	return r.DealID + ":" + r.ProvisionType
}

// WriteError is one per-field persistence failure. A failed field never
// aborts its siblings; it is reported here instead.
type WriteError struct {
	FieldID string `json:"field_id"`
	Channel string `json:"channel"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Report is the outcome of one run.
type Report struct {
	AnchorKey        string                  `json:"anchor_key"`
	SchemaVersion    string                  `json:"schema_version"`
	State            State                   `json:"state"`
	ValidationErrors []extraction.FieldError `json:"validation_errors,omitempty"`
	ScalarWrites     int                     `json:"scalar_writes"`
	MultiWrites      int                     `json:"multiselect_writes"`
	EntityWrites     int                     `json:"entity_writes"`
	EntityIDs        []string                `json:"entity_ids,omitempty"`
	WriteErrors      []WriteError            `json:"write_errors,omitempty"`
	Flags            map[string]bool         `json:"flags,omitempty"`
}

// Run executes the full pipeline for one anchor. Validation failures stop the
// run before anything touches the store; the report carries every collected
// field error. Cancellation is honored at the validated boundary, before the
// first write.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{AnchorKey: req.AnchorKey(), State: StatePending}
	log := e.log.With("anchor_key", report.AnchorKey)

	cat, err := e.schemas.EnsureFresh(ctx)
	if err != nil {
		return report, err
	}
	if err := e.ensureRegistry(cat); err != nil {
		return report, err
	}
	report.SchemaVersion = cat.Version
	report.State = StateIntrospected

	shape, err := cat.ResolveExtractionShape(req.ProvisionType)
	if err != nil {
		return report, err
	}

	raw := req.Raw
	if raw == nil {
		if e.source == nil {
			return report, enginerr.Newf(enginerr.KindValidation, "engine.Run", "no raw record and no extraction source configured")
		}
		raw, err = e.source.Extract(ctx, report.AnchorKey, cat.ExtractionSpecs, req.DocumentText)
		if err != nil {
			return report, fmt.Errorf("extraction source: %w", err)
		}
	}

	rec, fieldErrs := extraction.Validate(report.AnchorKey, raw, shape)
	if len(fieldErrs) > 0 {
		report.ValidationErrors = fieldErrs
		log.Warn("extraction failed validation", "errors", len(fieldErrs))
		return report, nil
	}
	report.State = StateValidated

	if err := ctx.Err(); err != nil {
		return report, err
	}

	// Route every field before the first write so a routing failure is a
	// whole-record failure, not a partial one.
	type routedField struct {
		field   schema.FieldShape
		value   domain.FieldValue
		channel routing.Channel
	}
	var routed []routedField
	for _, field := range shape.Fields {
		fv, present := rec.Fields[field.FieldID]
		if !present {
			continue
		}
		ch, err := routing.Route(field)
		if err != nil {
			return report, err
		}
		routed = append(routed, routedField{field: field, value: fv, channel: ch})
	}
	report.State = StateRouted

	if err := e.store.EnsureAnchor(ctx, domain.AnchorRef{
		Key:    report.AnchorKey,
		Type:   req.ProvisionType,
		DealID: req.DealID,
	}); err != nil {
		return report, err
	}

	for _, rf := range routed {
		var werr error
		switch rf.channel {
		case routing.ChannelScalar:
			if werr = e.store.StoreScalar(ctx, report.AnchorKey, rf.value); werr == nil {
				report.ScalarWrites++
			}
		case routing.ChannelMultiselect:
			if werr = e.store.StoreApplicability(ctx, report.AnchorKey, rf.value); werr == nil {
				report.MultiWrites++
			}
		case routing.ChannelEntity:
			for _, val := range rf.value.Values {
				ids, err := e.store.StoreEntity(ctx, cat, report.AnchorKey, rf.field.EntityType, val.Entity)
				if err != nil {
					werr = err
					break
				}
				report.EntityWrites++
				report.EntityIDs = append(report.EntityIDs, ids...)
			}
		}
		if werr != nil {
			report.WriteErrors = append(report.WriteErrors, WriteError{
				FieldID: rf.field.FieldID,
				Channel: string(rf.channel),
				Kind:    string(enginerr.KindOf(werr)),
				Message: werr.Error(),
			})
			log.Error("field write failed", "field_id", rf.field.FieldID, "channel", rf.channel, "error", werr)
		}
	}
	report.State = StatePersisted

	flags, err := e.RecomputeFlags(ctx, report.AnchorKey)
	if err != nil {
		log.Error("pattern flag recompute failed", "error", err)
		report.WriteErrors = append(report.WriteErrors, WriteError{
			Channel: "flags",
			Kind:    string(enginerr.KindOf(err)),
			Message: err.Error(),
		})
	} else {
		report.Flags = flags
	}

	log.Info("extraction run complete",
		"state", report.State,
		"scalar_writes", report.ScalarWrites,
		"multiselect_writes", report.MultiWrites,
		"entity_writes", report.EntityWrites,
		"write_errors", len(report.WriteErrors))
	return report, nil
}

// RecomputeFlags re-evaluates every declared pattern flag for one anchor from
// persisted facts and writes the results onto the anchor. This is the only
// path that mutates anchor flags.
func (e *Engine) RecomputeFlags(ctx context.Context, anchorKey string) (map[string]bool, error) {
	cat, err := e.schemas.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.ensureRegistry(cat); err != nil {
		return nil, err
	}

	flags := map[string]bool{}
	for _, flag := range cat.PatternFlags {
		matched, err := e.registry.Evaluate(ctx, e.reader, anchorKey, flag.PatternID)
		if err != nil {
			return nil, err
		}
		if err := e.store.StorePatternFlag(ctx, cat, anchorKey, flag.Name, matched); err != nil {
			return nil, err
		}
		flags[flag.Name] = matched
	}
	return flags, nil
}

// EvaluatePatterns runs the full registered pattern set against one anchor
// without writing anything.
func (e *Engine) EvaluatePatterns(ctx context.Context, anchorKey string) ([]patterns.Result, error) {
	cat, err := e.schemas.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.ensureRegistry(cat); err != nil {
		return nil, err
	}
	return e.registry.EvaluateAll(ctx, e.reader, anchorKey)
}

// RunBatch runs several extractions concurrently. One anchor's failure does
// not cancel the others; reports line up with the requests.
func (e *Engine) RunBatch(ctx context.Context, reqs []Request, concurrency int) ([]*Report, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	reports := make([]*Report, len(reqs))
	errs := make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range reqs {
		i := i
		g.Go(func() error {
			reports[i], errs[i] = e.Run(gctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}
	return reports, firstErr
}

// ensureRegistry rebuilds the pattern registry when the catalog version
// moves. Cyclic definitions are rejected here, before any evaluation.
func (e *Engine) ensureRegistry(cat *schema.Catalog) error {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	if e.regVersion == cat.Version {
		return nil
	}
	if err := e.registry.LoadCatalog(cat); err != nil {
		return err
	}
	e.regVersion = cat.Version
	return nil
}
