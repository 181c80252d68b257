package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/log"
)

// Upload is one file submitted for ingestion.
type Upload struct {
	Name string
	Data []byte
}

// Result is what a successful run produced.
type Result struct {
	RunID      string
	Generation uint64
	Totals     []core.CategoryTotal
	Persist    PersistReport
}

// Transition describes one phase change of a run. Err is set when entering
// PhaseFailed.
type Transition struct {
	RunID      string
	Generation uint64
	From       Phase
	To         Phase
	Err        error
	Published  bool
	At         time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTransitionHook registers fn to be called after every phase change.
func WithTransitionHook(fn func(Transition)) Option {
	return func(p *Pipeline) {
		p.onTransition = fn
	}
}

// Pipeline runs uploads through decode, normalize, validate, persist and
// aggregate, publishing each step to a Store.
type Pipeline struct {
	decoder      *Decoder
	sink         *Sink
	store        *Store
	logger       *log.Logger
	onTransition func(Transition)
}

func NewPipeline(decoder *Decoder, sink *Sink, store *Store, logger *log.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = log.Discard()
	}
	p := &Pipeline{
		decoder: decoder,
		sink:    sink,
		store:   store,
		logger:  logger.WithComponent(log.ComponentIngest),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the state container the pipeline publishes to.
func (p *Pipeline) Store() *Store {
	return p.store
}

type run struct {
	id     string
	gen    uint64
	phase  Phase
	logger *log.Logger
}

// Run processes one upload.
//
// Decode and schema failures publish a failed snapshot and are returned; no
// writes are issued for them. Otherwise totals are published as soon as they
// are computed while the rows are persisted concurrently, and Run returns
// once every write has settled. Persistence is detached from ctx
// cancellation so a disconnecting client or a newer upload does not abort
// writes already started; each write is still bounded by the sink timeout.
func (p *Pipeline) Run(ctx context.Context, up Upload) (Result, error) {
	r := &run{id: uuid.NewString(), gen: p.store.Begin(), phase: PhaseDecoding}
	r.logger = p.logger.With(log.FieldRunID, r.id, log.FieldGeneration, r.gen)
	defer p.settle(r)

	r.logger.InfoContext(ctx, "Upload received", log.FieldFileName, up.Name, log.FieldFileSize, len(up.Data))
	p.notify(r, PhaseIdle, PhaseDecoding, nil, true)

	raw, err := p.decoder.Decode(ctx, up.Data)
	if err != nil {
		return Result{}, p.fail(ctx, r, log.OpDecode, err)
	}

	p.advance(r, PhaseNormalizing)
	rows := Normalize(raw)

	p.advance(r, PhaseValidating)
	if err := Validate(rows); err != nil {
		return Result{}, p.fail(ctx, r, log.OpValidate, err)
	}

	p.advance(r, PhaseProcessing)

	persisted := make(chan PersistReport, 1)
	go func() {
		persisted <- p.sink.Persist(context.WithoutCancel(ctx), rows)
	}()

	totals := Aggregate(rows)
	published := p.store.Complete(r.gen, totals)
	p.notify(r, r.phase, PhaseDone, nil, published)
	r.phase = PhaseDone
	if !published {
		r.logger.WarnContext(ctx, "Newer upload already published, totals discarded")
	}
	r.logger.InfoContext(ctx, "Totals computed", log.FieldRows, len(rows), log.FieldCategories, len(totals))

	report := <-persisted
	return Result{RunID: r.id, Generation: r.gen, Totals: totals, Persist: report}, nil
}

func (p *Pipeline) advance(r *run, to Phase) {
	published := p.store.Advance(r.gen, to)
	p.notify(r, r.phase, to, nil, published)
	r.phase = to
}

func (p *Pipeline) fail(ctx context.Context, r *run, op string, err error) error {
	message := core.MsgDecodeFailed
	kind := core.KindDecode
	if perr, ok := core.AsPipelineError(err); ok {
		message = perr.Message
		kind = perr.Kind
	}

	published := p.store.Fail(r.gen, message)
	p.notify(r, r.phase, PhaseFailed, err, published)
	r.phase = PhaseFailed

	r.logger.WarnContext(ctx, "Upload rejected",
		log.FieldOperation, op,
		log.FieldErrorKind, kind,
		log.FieldError, err.Error())
	return err
}

func (p *Pipeline) settle(r *run) {
	published := p.store.Settle(r.gen)
	p.notify(r, r.phase, PhaseIdle, nil, published)
	r.phase = PhaseIdle
}

func (p *Pipeline) notify(r *run, from, to Phase, err error, published bool) {
	if p.onTransition == nil {
		return
	}
	p.onTransition(Transition{
		RunID:      r.id,
		Generation: r.gen,
		From:       from,
		To:         to,
		Err:        err,
		Published:  published,
		At:         time.Now(),
	})
}
