package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/model"
)

// MemoryStore keeps every entity in maps behind one mutex. Status guards
// run under the lock, which gives the same check-and-set semantics as the
// conditional UPDATEs of the Postgres repositories.
type MemoryStore struct {
	mu  sync.Mutex
	seq int64

	datasets     map[uuid.UUID]*memEntry[model.Dataset]
	templates    map[uuid.UUID]*memEntry[model.Template]
	runs         map[uuid.UUID]*memEntry[model.Run]
	certificates map[uuid.UUID]*memEntry[model.Certificate]
	campaigns    map[uuid.UUID]*memEntry[model.EmailCampaign]
	logs         map[uuid.UUID]*memEntry[model.EmailLog]
}

// memEntry remembers insertion order so listings are stable when
// timestamps tie.
type memEntry[T any] struct {
	seq   int64
	value T
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		datasets:     map[uuid.UUID]*memEntry[model.Dataset]{},
		templates:    map[uuid.UUID]*memEntry[model.Template]{},
		runs:         map[uuid.UUID]*memEntry[model.Run]{},
		certificates: map[uuid.UUID]*memEntry[model.Certificate]{},
		campaigns:    map[uuid.UUID]*memEntry[model.EmailCampaign]{},
		logs:         map[uuid.UUID]*memEntry[model.EmailLog]{},
	}
}

func (s *MemoryStore) Repositories() *Repositories {
	return &Repositories{
		Datasets:     memDatasets{s},
		Templates:    memTemplates{s},
		Runs:         memRuns{s},
		Certificates: memCertificates{s},
		Campaigns:    memCampaigns{s},
	}
}

func (s *MemoryStore) next() int64 {
	s.seq++
	return s.seq
}

// sorted returns the entries matching keep, newest first.
func sorted[T any](m map[uuid.UUID]*memEntry[T], created func(*T) time.Time, keep func(*T) bool) []T {
	entries := make([]*memEntry[T], 0, len(m))
	for _, e := range m {
		if keep == nil || keep(&e.value) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := created(&entries[i].value), created(&entries[j].value)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].seq > entries[j].seq
	})
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

func ownedBy(f ListFilter, owner uuid.UUID) bool {
	return f.OwnerGroupID == nil || *f.OwnerGroupID == owner
}

func ptrs[T any](items []T) []*T {
	out := make([]*T, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}

// ====================== Datasets ======================

type memDatasets struct{ s *MemoryStore }

func (r memDatasets) Create(_ context.Context, d *model.Dataset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	stored := *d
	stored.Columns, stored.Rows = nil, nil
	r.s.datasets[d.ID] = &memEntry[model.Dataset]{seq: r.s.next(), value: stored}
	return nil
}

func (r memDatasets) GetByID(_ context.Context, id uuid.UUID) (*model.Dataset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.datasets[id]
	if !ok {
		return nil, appErrors.NewNotFound("dataset", id)
	}
	d := e.value
	return &d, nil
}

func (r memDatasets) List(_ context.Context, f ListFilter) ([]*model.Dataset, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sorted(r.s.datasets,
		func(d *model.Dataset) time.Time { return d.CreatedAt },
		func(d *model.Dataset) bool { return ownedBy(f, d.OwnerGroupID) })
	return ptrs(paginate(all, f)), len(all), nil
}

func (r memDatasets) UpdateName(_ context.Context, id uuid.UUID, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.datasets[id]
	if !ok {
		return appErrors.NewNotFound("dataset", id)
	}
	e.value.Name = name
	return nil
}

func (r memDatasets) UpdateEncoding(_ context.Context, id uuid.UUID, rawColumns, rawRows string, processedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.datasets[id]
	if !ok {
		return appErrors.NewNotFound("dataset", id)
	}
	e.value.RawColumns = rawColumns
	e.value.RawRows = rawRows
	e.value.ProcessedAt = &processedAt
	return nil
}

func (r memDatasets) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.datasets[id]; !ok {
		return appErrors.NewNotFound("dataset", id)
	}
	for _, run := range r.s.runs {
		if run.value.DatasetID == id {
			return appErrors.NewInvalidState("dataset", id, "in use", "delete")
		}
	}
	delete(r.s.datasets, id)
	return nil
}

// ====================== Templates ======================

type memTemplates struct{ s *MemoryStore }

func (r memTemplates) Create(_ context.Context, t *model.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	t.DetectedFields = detectedOrEmpty(t.DetectedFields)
	r.s.templates[t.ID] = &memEntry[model.Template]{seq: r.s.next(), value: *t}
	return nil
}

func (r memTemplates) GetByID(_ context.Context, id uuid.UUID) (*model.Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.templates[id]
	if !ok {
		return nil, appErrors.NewNotFound("template", id)
	}
	t := e.value
	return &t, nil
}

func (r memTemplates) List(_ context.Context, f ListFilter) ([]*model.Template, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sorted(r.s.templates,
		func(t *model.Template) time.Time { return t.CreatedAt },
		func(t *model.Template) bool { return ownedBy(f, t.OwnerGroupID) })
	return ptrs(paginate(all, f)), len(all), nil
}

func (r memTemplates) Update(_ context.Context, t *model.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.templates[t.ID]
	if !ok {
		return appErrors.NewNotFound("template", t.ID)
	}
	t.UpdatedAt = time.Now().UTC()
	e.value.Name = t.Name
	e.value.Document = t.Document
	e.value.DetectedFields = detectedOrEmpty(t.DetectedFields)
	e.value.UpdatedAt = t.UpdatedAt
	return nil
}

func (r memTemplates) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.templates[id]; !ok {
		return appErrors.NewNotFound("template", id)
	}
	for _, run := range r.s.runs {
		if run.value.TemplateID == id {
			return appErrors.NewInvalidState("template", id, "in use", "delete")
		}
	}
	delete(r.s.templates, id)
	return nil
}

// ====================== Runs ======================

type memRuns struct{ s *MemoryStore }

func (r memRuns) Create(_ context.Context, run *model.Run) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.templates[run.TemplateID]; !ok {
		return appErrors.NewNotFound("template", run.TemplateID)
	}
	if _, ok := r.s.datasets[run.DatasetID]; !ok {
		return appErrors.NewNotFound("dataset", run.DatasetID)
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = model.RunPending
	}
	run.CreatedAt = time.Now().UTC()
	r.s.runs[run.ID] = &memEntry[model.Run]{seq: r.s.next(), value: *run}
	return nil
}

func (r memRuns) GetByID(_ context.Context, id uuid.UUID) (*model.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.runs[id]
	if !ok {
		return nil, appErrors.NewNotFound("run", id)
	}
	run := e.value
	return &run, nil
}

func (r memRuns) List(_ context.Context, f ListFilter) ([]*model.Run, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sorted(r.s.runs,
		func(run *model.Run) time.Time { return run.CreatedAt },
		func(run *model.Run) bool { return ownedBy(f, run.OwnerGroupID) })
	return ptrs(paginate(all, f)), len(all), nil
}

func (r memRuns) UpdateName(_ context.Context, id uuid.UUID, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.runs[id]
	if !ok {
		return appErrors.NewNotFound("run", id)
	}
	e.value.Name = name
	return nil
}

func (r memRuns) MarkProcessing(_ context.Context, id uuid.UUID, startedAt time.Time) (*model.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.runs[id]
	if !ok {
		return nil, appErrors.NewNotFound("run", id)
	}
	if e.value.Status != model.RunPending {
		return nil, appErrors.NewInvalidState("run", id, string(e.value.Status), "execute")
	}
	e.value.Status = model.RunProcessing
	e.value.StartedAt = &startedAt
	run := e.value
	return &run, nil
}

func (r memRuns) Finish(_ context.Context, id uuid.UUID, status model.RunStatus, generated int, completedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.runs[id]
	if !ok {
		return appErrors.NewNotFound("run", id)
	}
	if !model.CanTransition(e.value.Status, status) {
		return appErrors.NewInvalidState("run", id, string(e.value.Status), "finish")
	}
	e.value.Status = status
	e.value.CertificatesGenerated = generated
	e.value.CompletedAt = &completedAt
	return nil
}

func (r memRuns) Delete(_ context.Context, id uuid.UUID) (*RunDeleteResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.runs[id]
	if !ok {
		return nil, appErrors.NewNotFound("run", id)
	}
	campaigns := map[uuid.UUID]bool{}
	for cid, c := range r.s.campaigns {
		if c.value.RunID == id {
			campaigns[cid] = true
		}
	}
	certs := map[uuid.UUID]bool{}
	for cid, c := range r.s.certificates {
		if c.value.RunID != nil && *c.value.RunID == id {
			certs[cid] = true
		}
	}

	result := &RunDeleteResult{}
	for lid, l := range r.s.logs {
		if campaigns[l.value.CampaignID] || certs[l.value.CertificateID] {
			delete(r.s.logs, lid)
			result.EmailLogsDeleted++
		}
	}
	for cid := range campaigns {
		delete(r.s.campaigns, cid)
		result.CampaignsDeleted++
	}
	for cid := range certs {
		delete(r.s.certificates, cid)
		result.CertificatesDeleted++
	}
	delete(r.s.runs, id)
	return result, nil
}

// ====================== Certificates ======================

type memCertificates struct{ s *MemoryStore }

func (r memCertificates) Create(_ context.Context, c *model.Certificate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.RunID != nil {
		if _, ok := r.s.runs[*c.RunID]; !ok {
			return appErrors.NewNotFound("run", *c.RunID)
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.CertificateCompleted
	}
	c.CreatedAt = time.Now().UTC()
	r.s.certificates[c.ID] = &memEntry[model.Certificate]{seq: r.s.next(), value: *c}
	return nil
}

func (r memCertificates) GetByID(_ context.Context, id uuid.UUID) (*model.Certificate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.certificates[id]
	if !ok {
		return nil, appErrors.NewNotFound("certificate", id)
	}
	c := e.value
	return &c, nil
}

func (r memCertificates) List(_ context.Context, f CertificateFilter) ([]*model.Certificate, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sorted(r.s.certificates,
		func(c *model.Certificate) time.Time { return c.CreatedAt },
		func(c *model.Certificate) bool {
			if !ownedBy(f.ListFilter, c.OwnerGroupID) {
				return false
			}
			if f.RunID != nil && (c.RunID == nil || *c.RunID != *f.RunID) {
				return false
			}
			return f.Status == "" || c.Status == f.Status
		})
	return ptrs(paginate(all, f.ListFilter)), len(all), nil
}

func (r memCertificates) byRun(runID uuid.UUID, status model.CertificateStatus) []model.Certificate {
	var out []model.Certificate
	for _, e := range r.s.certificates {
		c := e.value
		if c.RunID != nil && *c.RunID == runID && c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out
}

func (r memCertificates) ListByRun(_ context.Context, runID uuid.UUID, status model.CertificateStatus) ([]*model.Certificate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return ptrs(r.byRun(runID, status)), nil
}

func (r memCertificates) CountByRun(_ context.Context, runID uuid.UUID, status model.CertificateStatus) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.byRun(runID, status)), nil
}

func (r memCertificates) Update(_ context.Context, c *model.Certificate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.certificates[c.ID]
	if !ok {
		return appErrors.NewNotFound("certificate", c.ID)
	}
	e.value.SubjectName = c.SubjectName
	e.value.RenderedDocumentRef = c.RenderedDocumentRef
	e.value.Status = c.Status
	e.value.VerifiedAt = c.VerifiedAt
	e.value.EmailRecipient = c.EmailRecipient
	return nil
}

func (r memCertificates) MarkEmailSent(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.certificates[id]
	if !ok {
		return appErrors.NewNotFound("certificate", id)
	}
	e.value.EmailSent = true
	return nil
}

func (r memCertificates) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.certificates[id]; !ok {
		return appErrors.NewNotFound("certificate", id)
	}
	for lid, l := range r.s.logs {
		if l.value.CertificateID == id {
			delete(r.s.logs, lid)
		}
	}
	delete(r.s.certificates, id)
	return nil
}

// ====================== Campaigns ======================

type memCampaigns struct{ s *MemoryStore }

func (r memCampaigns) Create(_ context.Context, c *model.EmailCampaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.runs[c.RunID]; !ok {
		return appErrors.NewNotFound("run", c.RunID)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.CreatedAt = time.Now().UTC()
	r.s.campaigns[c.ID] = &memEntry[model.EmailCampaign]{seq: r.s.next(), value: *c}
	return nil
}

func (r memCampaigns) GetByID(_ context.Context, id uuid.UUID) (*model.EmailCampaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewNotFound("campaign", id)
	}
	c := e.value
	return &c, nil
}

func (r memCampaigns) ListCampaigns(_ context.Context, f CampaignFilter) ([]*model.EmailCampaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sorted(r.s.campaigns,
		func(c *model.EmailCampaign) time.Time { return c.CreatedAt },
		func(c *model.EmailCampaign) bool {
			if !ownedBy(f.ListFilter, c.OwnerGroupID) {
				return false
			}
			if f.RunID != nil && c.RunID != *f.RunID {
				return false
			}
			return f.Status == "" || c.Status == f.Status
		})
	return ptrs(paginate(all, f.ListFilter)), len(all), nil
}

func (r memCampaigns) Update(_ context.Context, c *model.EmailCampaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.campaigns[c.ID]
	if !ok {
		return appErrors.NewNotFound("campaign", c.ID)
	}
	if e.value.Status != model.CampaignDraft {
		return appErrors.NewInvalidState("campaign", c.ID, string(e.value.Status), "update")
	}
	e.value.Name = c.Name
	e.value.Subject = c.Subject
	e.value.Body = c.Body
	e.value.HTMLBody = c.HTMLBody
	return nil
}

func (r memCampaigns) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.campaigns[id]
	if !ok {
		return appErrors.NewNotFound("campaign", id)
	}
	if e.value.Status == model.CampaignSending {
		return appErrors.NewInvalidState("campaign", id, string(e.value.Status), "delete")
	}
	for lid, l := range r.s.logs {
		if l.value.CampaignID == id {
			delete(r.s.logs, lid)
		}
	}
	delete(r.s.campaigns, id)
	return nil
}

func (r memCampaigns) MarkSending(_ context.Context, id uuid.UUID, startedAt time.Time) (*model.EmailCampaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewNotFound("campaign", id)
	}
	switch e.value.Status {
	case model.CampaignCompleted:
		return nil, appErrors.NewAlreadySent(id)
	case model.CampaignDraft, model.CampaignError:
	default:
		return nil, appErrors.NewInvalidState("campaign", id, string(e.value.Status), "send")
	}
	e.value.Status = model.CampaignSending
	e.value.StartedAt = &startedAt
	c := e.value
	return &c, nil
}

func (r memCampaigns) Finish(_ context.Context, id uuid.UUID, status model.CampaignStatus, emailsSent int, completedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.campaigns[id]
	if !ok {
		return appErrors.NewNotFound("campaign", id)
	}
	if e.value.Status != model.CampaignSending {
		return appErrors.NewInvalidState("campaign", id, string(e.value.Status), "finish")
	}
	e.value.Status = status
	e.value.EmailsSent = emailsSent
	e.value.CompletedAt = &completedAt
	return nil
}

func (r memCampaigns) CreateEmailLog(_ context.Context, l *model.EmailLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Now().UTC()
	r.s.logs[l.ID] = &memEntry[model.EmailLog]{seq: r.s.next(), value: *l}
	return nil
}

func (r memCampaigns) GetCampaignStats(_ context.Context, campaignID uuid.UUID) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := map[string]int{string(model.EmailSent): 0, string(model.EmailFailed): 0}
	for _, l := range r.s.logs {
		if l.value.CampaignID == campaignID {
			stats[string(l.value.Status)]++
		}
	}
	return stats, nil
}

func (r memCampaigns) SentCertificateIDs(_ context.Context, campaignID uuid.UUID) (map[uuid.UUID]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sent := map[uuid.UUID]bool{}
	for _, l := range r.s.logs {
		if l.value.CampaignID == campaignID && l.value.Status == model.EmailSent {
			sent[l.value.CertificateID] = true
		}
	}
	return sent, nil
}

var (
	_ DatasetRepositoryInterface     = memDatasets{}
	_ TemplateRepositoryInterface    = memTemplates{}
	_ RunRepositoryInterface         = memRuns{}
	_ CertificateRepositoryInterface = memCertificates{}
	_ CampaignRepositoryInterface    = memCampaigns{}
)
