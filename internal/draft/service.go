package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"injury-report/internal/auth"
	"injury-report/internal/injury"
	"injury-report/internal/platform/graph"
)

// RecordSession is the record store as seen by one draft. The list location
// it resolves is written back to the draft.
type RecordSession interface {
	Ref(ctx context.Context) (graph.ListRef, error)
	Create(ctx context.Context, fields any) (string, error)
	Update(ctx context.Context, id string, fields any) error
	Get(ctx context.Context, id string) (*graph.Item, error)
	List(ctx context.Context) ([]graph.Item, error)
	Delete(ctx context.Context, id string) error
}

// SessionFactory opens a record store session for a caller. known carries
// list ids resolved earlier, if any.
type SessionFactory func(ts auth.TokenSource, known graph.ListRef) RecordSession

// Renderer produces the printable form of a report.
type Renderer interface {
	Render(rec injury.ExternalRecord, form injury.FormState) ([]byte, error)
}

// Submission is handed to every Notifier after a report is submitted.
type Submission struct {
	ItemID      string
	Record      injury.ExternalRecord
	Form        injury.FormState
	SubmittedBy auth.Identity
	SubmittedAt time.Time
}

// Notifier reacts to submitted reports. Failures are logged only.
type Notifier interface {
	Name() string
	ReportSubmitted(ctx context.Context, sub Submission) error
}

type Result struct {
	Draft    *Draft                `json:"draft"`
	Record   injury.ExternalRecord `json:"record"`
	Warnings []injury.Warning      `json:"warnings,omitempty"`
}

type SubmitResult struct {
	ItemID string                `json:"item_id"`
	Record injury.ExternalRecord `json:"record"`
	Draft  *Draft                `json:"draft"`
}

type OpenResult struct {
	Draft *Draft `json:"draft"`
	// Fallback is set when the stored blobs were unusable and the form was
	// rebuilt from the flat fields.
	Fallback bool `json:"fallback"`
}

type ReportSummary struct {
	ItemID              string    `json:"item_id"`
	Title               string    `json:"title"`
	EmployeeName        string    `json:"employee_name"`
	Severity            string    `json:"severity"`
	AKOSHReportRequired bool      `json:"akosh_report_required"`
	AKOSHReportDeadline string    `json:"akosh_report_deadline,omitempty"`
	IsSIF               bool      `json:"is_sif"`
	Modified            time.Time `json:"modified"`
}

type ReportView struct {
	ItemID   string                `json:"item_id"`
	Record   injury.ExternalRecord `json:"record"`
	Form     injury.FormState      `json:"form"`
	Fallback bool                  `json:"fallback"`
}

type Service interface {
	Create(ctx context.Context) (*Draft, error)
	Get(ctx context.Context, id uuid.UUID) (*Draft, error)
	UpdateSection(ctx context.Context, id uuid.UUID, section string, raw json.RawMessage) (*Draft, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Preview(form injury.FormState) Result

	Save(ctx context.Context, id uuid.UUID, ts auth.TokenSource) (*Result, error)
	Submit(ctx context.Context, id uuid.UUID, ts auth.TokenSource) (*SubmitResult, error)
	Open(ctx context.Context, itemID string, ts auth.TokenSource) (*OpenResult, error)

	ListReports(ctx context.Context, ts auth.TokenSource) ([]ReportSummary, error)
	GetReport(ctx context.Context, itemID string, ts auth.TokenSource) (*ReportView, error)
	DeleteReport(ctx context.Context, itemID string, ts auth.TokenSource) error
	ReportPDF(ctx context.Context, itemID string, ts auth.TokenSource) ([]byte, error)

	// Wait blocks until post-submit work started so far has finished.
	Wait()
}

type service struct {
	repo      Repository
	sessions  SessionFactory
	mapper    *injury.Mapper
	renderer  Renderer
	notifiers []Notifier
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	ref      graph.ListRef
	wg       sync.WaitGroup

	retryDelay time.Duration
}

func NewService(repo Repository, sessions SessionFactory, mapper *injury.Mapper, renderer Renderer, logger *zap.Logger, notifiers ...Notifier) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		repo:      repo,
		sessions:  sessions,
		mapper:    mapper,
		renderer:  renderer,
		notifiers: notifiers,
		logger:    logger,
		inflight:  make(map[uuid.UUID]struct{}),

		retryDelay: 200 * time.Millisecond,
	}
}

func (s *service) Create(ctx context.Context) (*Draft, error) {
	d := &Draft{
		ID:        uuid.New(),
		Status:    StatusOpen,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Draft, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) UpdateSection(ctx context.Context, id uuid.UUID, section string, raw json.RawMessage) (*Draft, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.SetSection(section, raw); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	release, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer release()
	return s.repo.Delete(ctx, id)
}

// Preview derives the record a save would write, without stamping anything.
func (s *service) Preview(form injury.FormState) Result {
	rec, _ := s.mapper.Forward(form, injury.Stamps{})
	return Result{Record: rec, Warnings: injury.Validate(form)}
}

func (s *service) Save(ctx context.Context, id uuid.UUID, ts auth.TokenSource) (*Result, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := s.persist(ctx, d, ts)
	if err != nil {
		return nil, err
	}
	return &Result{Draft: d, Record: rec, Warnings: injury.Validate(d.Form)}, nil
}

func (s *service) Submit(ctx context.Context, id uuid.UUID, ts auth.TokenSource) (*SubmitResult, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := s.persist(ctx, d, ts)
	if err != nil {
		return nil, err
	}

	sub := Submission{
		ItemID:      d.ItemID,
		Record:      rec,
		Form:        d.Form,
		SubmittedBy: auth.IdentityFromContext(ctx),
		SubmittedAt: time.Now(),
	}

	d.reset()
	if err := s.repo.Save(ctx, d); err != nil {
		// The report is in the store already; only the local reset failed.
		s.logger.Error("failed to reset submitted draft", zap.Stringer("draft_id", d.ID), zap.Error(err))
	}

	s.logger.Info("report submitted",
		zap.String("item_id", sub.ItemID),
		zap.String("severity", string(rec.Severity)),
		zap.Bool("external_report_required", rec.AKOSHReportRequired),
		zap.String("submitted_by", sub.SubmittedBy.Username),
	)
	s.dispatch(context.WithoutCancel(ctx), sub)

	return &SubmitResult{ItemID: sub.ItemID, Record: rec, Draft: d}, nil
}

// persist writes the draft to the record store, creating the item on first
// save and updating it in place afterwards. Store errors are returned as is
// and leave the draft untouched.
func (s *service) persist(ctx context.Context, d *Draft, ts auth.TokenSource) (injury.ExternalRecord, error) {
	rec, stamps := s.mapper.Forward(d.Form, d.Stamps)
	sess := s.session(ts, graph.ListRef{SiteID: d.SiteID, ListID: d.ListID})

	itemID := d.ItemID
	created := itemID == ""
	if created {
		id, err := sess.Create(ctx, rec)
		if err != nil {
			s.logger.Warn("record store create failed", zap.Stringer("draft_id", d.ID), zap.Error(err))
			return injury.ExternalRecord{}, err
		}
		itemID = id
	} else if err := sess.Update(ctx, itemID, rec.PatchFields()); err != nil {
		s.logger.Warn("record store update failed", zap.Stringer("draft_id", d.ID), zap.String("item_id", itemID), zap.Error(err))
		return injury.ExternalRecord{}, err
	}

	prev := *d
	if ref, ok := s.remember(ctx, sess); ok {
		d.SiteID, d.ListID = ref.SiteID, ref.ListID
	}
	d.ItemID = itemID
	d.Stamps = stamps
	if err := s.saveDraft(ctx, d); err != nil {
		*d = prev
		if created {
			// Without the item id on the draft the next save would create a
			// second item, so take this one back.
			if derr := sess.Delete(context.WithoutCancel(ctx), itemID); derr != nil {
				s.logger.Error("failed to remove orphaned record",
					zap.Stringer("draft_id", d.ID), zap.String("item_id", itemID), zap.Error(derr))
			}
		}
		return injury.ExternalRecord{}, fmt.Errorf("saved item %s but failed to update draft: %w", itemID, err)
	}
	s.logger.Debug("draft saved", zap.Stringer("draft_id", d.ID), zap.String("item_id", itemID))
	return rec, nil
}

// saveDraft writes the draft, retrying briefly on failure.
func (s *service) saveDraft(ctx context.Context, d *Draft) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.repo.Save(ctx, d); err == nil {
			return nil
		}
		s.logger.Warn("draft write failed", zap.Stringer("draft_id", d.ID), zap.Int("attempt", i+1), zap.Error(err))
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(s.retryDelay * time.Duration(i+1)):
		}
	}
	return err
}

// session opens a record store session. Calls that are not tied to a draft
// reuse the list location resolved earlier in the process.
func (s *service) session(ts auth.TokenSource, known graph.ListRef) RecordSession {
	if known.SiteID == "" || known.ListID == "" {
		s.mu.Lock()
		known = s.ref
		s.mu.Unlock()
	}
	return s.sessions(ts, known)
}

// remember caches the list location of a session that has already resolved
// it.
func (s *service) remember(ctx context.Context, sess RecordSession) (graph.ListRef, bool) {
	ref, err := sess.Ref(ctx)
	if err != nil || ref.SiteID == "" || ref.ListID == "" {
		return graph.ListRef{}, false
	}
	s.mu.Lock()
	s.ref = ref
	s.mu.Unlock()
	return ref, true
}

func (s *service) Open(ctx context.Context, itemID string, ts auth.TokenSource) (*OpenResult, error) {
	sess := s.session(ts, graph.ListRef{})
	item, err := sess.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	form, rec, fallback := injury.ReverseFields(item.Fields)
	if fallback {
		s.logger.Warn("stored report has no usable section data, rebuilt from fields", zap.String("item_id", itemID))
	}

	d := &Draft{
		ID:     uuid.New(),
		Form:   form,
		ItemID: itemID,
		Stamps: injury.Stamps{
			ReportedToSupervisorAt: rec.ReportedToSupervisorAt,
			ReportedToCSMAt:        rec.ReportedToCSMAt,
		},
		Status: StatusOpen,
	}
	if ref, ok := s.remember(ctx, sess); ok {
		d.SiteID, d.ListID = ref.SiteID, ref.ListID
	}
	if err := s.repo.Save(ctx, d); err != nil {
		return nil, err
	}
	return &OpenResult{Draft: d, Fallback: fallback}, nil
}

func (s *service) ListReports(ctx context.Context, ts auth.TokenSource) ([]ReportSummary, error) {
	sess := s.session(ts, graph.ListRef{})
	items, err := sess.List(ctx)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, sess)
	out := make([]ReportSummary, 0, len(items))
	for _, item := range items {
		rec := injury.RecordFromFields(item.Fields)
		out = append(out, ReportSummary{
			ItemID:              item.ID,
			Title:               rec.Title,
			EmployeeName:        rec.EmployeeName,
			Severity:            string(rec.Severity),
			AKOSHReportRequired: rec.AKOSHReportRequired,
			AKOSHReportDeadline: rec.AKOSHReportDeadline,
			IsSIF:               rec.IsSIF,
			Modified:            item.LastModifiedDateTime,
		})
	}
	return out, nil
}

func (s *service) GetReport(ctx context.Context, itemID string, ts auth.TokenSource) (*ReportView, error) {
	sess := s.session(ts, graph.ListRef{})
	item, err := sess.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, sess)
	form, rec, fallback := injury.ReverseFields(item.Fields)
	return &ReportView{ItemID: item.ID, Record: rec, Form: form, Fallback: fallback}, nil
}

func (s *service) DeleteReport(ctx context.Context, itemID string, ts auth.TokenSource) error {
	sess := s.session(ts, graph.ListRef{})
	if err := sess.Delete(ctx, itemID); err != nil {
		return err
	}
	s.remember(ctx, sess)
	s.logger.Info("report deleted", zap.String("item_id", itemID))
	return nil
}

func (s *service) ReportPDF(ctx context.Context, itemID string, ts auth.TokenSource) ([]byte, error) {
	view, err := s.GetReport(ctx, itemID, ts)
	if err != nil {
		return nil, err
	}
	if s.renderer == nil {
		return nil, fmt.Errorf("pdf rendering is not configured")
	}
	return s.renderer.Render(view.Record, view.Form)
}

// dispatch runs every notifier concurrently in the background.
func (s *service) dispatch(ctx context.Context, sub Submission) {
	if len(s.notifiers) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var g errgroup.Group
		for _, n := range s.notifiers {
			n := n
			g.Go(func() error {
				if err := n.ReportSubmitted(ctx, sub); err != nil {
					s.logger.Error("post-submit step failed",
						zap.String("step", n.Name()),
						zap.String("item_id", sub.ItemID),
						zap.Error(err),
					)
					return err
				}
				s.logger.Debug("post-submit step done", zap.String("step", n.Name()), zap.String("item_id", sub.ItemID))
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (s *service) Wait() {
	s.wg.Wait()
}

// acquire marks a draft as in flight. A second caller gets ErrDraftBusy
// instead of racing the first one into a duplicate create.
func (s *service) acquire(id uuid.UUID) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return nil, ErrDraftBusy
	}
	s.inflight[id] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}, nil
}
