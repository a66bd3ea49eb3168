package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"facilityfix/api/internal/docstore"
)

// Collection names.
const (
	Concerns      = "concern_slips"
	JobServices   = "job_services"
	WorkPermits   = "work_order_permits"
	Notifications = "notifications"
	History       = "status_history"
	FeedbackColl  = "feedback"
	Users         = "users"
)

// Repository is the typed view over the document store. It only does
// shape conversion; guards, transitions and authorization live in the
// workflow engine.
type Repository struct {
	store docstore.Store
}

func New(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// Store exposes the underlying document store for callers that need
// raw access, such as health checks.
func (r *Repository) Store() docstore.Store { return r.store }

func toDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func fromDoc(doc map[string]any, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func (r *Repository) create(ctx context.Context, collection, id string, v any) error {
	doc, err := toDoc(v)
	if err != nil {
		return err
	}
	_, err = r.store.Create(ctx, collection, id, doc)
	return err
}

func (r *Repository) get(ctx context.Context, collection, id string, v any) error {
	doc, err := r.store.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	return fromDoc(doc, v)
}

func (r *Repository) CreateConcern(ctx context.Context, c *Concern) error {
	return r.create(ctx, Concerns, c.ID, c)
}

func (r *Repository) GetConcern(ctx context.Context, id string) (Concern, error) {
	var c Concern
	err := r.get(ctx, Concerns, id, &c)
	return c, err
}

// UpdateConcernWhere applies patch only if every guard predicate holds
// against the stored document, atomically. docstore.ErrConflict means
// another writer got there first.
func (r *Repository) UpdateConcernWhere(ctx context.Context, id string, guards []docstore.Predicate, patch map[string]any) error {
	return r.store.UpdateWhere(ctx, Concerns, id, guards, patch)
}

func (r *Repository) QueryConcerns(ctx context.Context, predicates []docstore.Predicate, opts docstore.Options) ([]Concern, error) {
	docs, err := r.store.Query(ctx, Concerns, predicates, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Concern, 0, len(docs))
	for _, doc := range docs {
		var c Concern
		if err := fromDoc(doc, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Repository) CreateJobService(ctx context.Context, j *JobService) error {
	return r.create(ctx, JobServices, j.ID, j)
}

func (r *Repository) GetJobService(ctx context.Context, id string) (JobService, error) {
	var j JobService
	err := r.get(ctx, JobServices, id, &j)
	return j, err
}

func (r *Repository) UpdateJobServiceWhere(ctx context.Context, id string, guards []docstore.Predicate, patch map[string]any) error {
	return r.store.UpdateWhere(ctx, JobServices, id, guards, patch)
}

func (r *Repository) QueryJobServices(ctx context.Context, predicates []docstore.Predicate, opts docstore.Options) ([]JobService, error) {
	docs, err := r.store.Query(ctx, JobServices, predicates, opts)
	if err != nil {
		return nil, err
	}
	out := make([]JobService, 0, len(docs))
	for _, doc := range docs {
		var j JobService
		if err := fromDoc(doc, &j); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *Repository) CreateWorkPermit(ctx context.Context, p *WorkPermit) error {
	return r.create(ctx, WorkPermits, p.ID, p)
}

func (r *Repository) GetWorkPermit(ctx context.Context, id string) (WorkPermit, error) {
	var p WorkPermit
	err := r.get(ctx, WorkPermits, id, &p)
	return p, err
}

func (r *Repository) UpdateWorkPermitWhere(ctx context.Context, id string, guards []docstore.Predicate, patch map[string]any) error {
	return r.store.UpdateWhere(ctx, WorkPermits, id, guards, patch)
}

func (r *Repository) QueryWorkPermits(ctx context.Context, predicates []docstore.Predicate, opts docstore.Options) ([]WorkPermit, error) {
	docs, err := r.store.Query(ctx, WorkPermits, predicates, opts)
	if err != nil {
		return nil, err
	}
	out := make([]WorkPermit, 0, len(docs))
	for _, doc := range docs {
		var p WorkPermit
		if err := fromDoc(doc, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Repository) CreateNotification(ctx context.Context, n *Notification) error {
	return r.create(ctx, Notifications, n.ID, n)
}

func (r *Repository) GetNotification(ctx context.Context, id string) (Notification, error) {
	var n Notification
	err := r.get(ctx, Notifications, id, &n)
	return n, err
}

func (r *Repository) MarkNotificationRead(ctx context.Context, id string) error {
	return r.store.Update(ctx, Notifications, id, map[string]any{"is_read": true})
}

func (r *Repository) QueryNotifications(ctx context.Context, predicates []docstore.Predicate, opts docstore.Options) ([]Notification, error) {
	docs, err := r.store.Query(ctx, Notifications, predicates, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(docs))
	for _, doc := range docs {
		var n Notification
		if err := fromDoc(doc, &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *Repository) CreateStatusHistory(ctx context.Context, h *StatusHistory) error {
	return r.create(ctx, History, h.ID, h)
}

func (r *Repository) QueryStatusHistory(ctx context.Context, entityType, entityID string) ([]StatusHistory, error) {
	docs, err := r.store.Query(ctx, History, []docstore.Predicate{
		{Field: "entity_type", Op: docstore.OpEq, Value: entityType},
		{Field: "entity_id", Op: docstore.OpEq, Value: entityID},
	}, docstore.Options{OrderBy: "created_at"})
	if err != nil {
		return nil, err
	}
	out := make([]StatusHistory, 0, len(docs))
	for _, doc := range docs {
		var h StatusHistory
		if err := fromDoc(doc, &h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (r *Repository) CreateFeedback(ctx context.Context, f *Feedback) error {
	return r.create(ctx, FeedbackColl, f.ID, f)
}

func (r *Repository) QueryFeedback(ctx context.Context, predicates []docstore.Predicate, opts docstore.Options) ([]Feedback, error) {
	docs, err := r.store.Query(ctx, FeedbackColl, predicates, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Feedback, 0, len(docs))
	for _, doc := range docs {
		var f Feedback
		if err := fromDoc(doc, &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	return r.create(ctx, Users, u.ID, u)
}

func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := r.get(ctx, Users, id, &u)
	return u, err
}

func (r *Repository) UpdateUser(ctx context.Context, id string, patch map[string]any) error {
	return r.store.Update(ctx, Users, id, patch)
}

// GetUserByEmail returns docstore.ErrNotFound when no account matches.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	docs, err := r.store.Query(ctx, Users, []docstore.Predicate{
		{Field: "email", Op: docstore.OpEq, Value: email},
	}, docstore.Options{Limit: 1})
	if err != nil {
		return User{}, err
	}
	if len(docs) == 0 {
		return User{}, docstore.ErrNotFound
	}
	var u User
	err = fromDoc(docs[0], &u)
	return u, err
}

func (r *Repository) QueryUsersByRole(ctx context.Context, role string) ([]User, error) {
	docs, err := r.store.Query(ctx, Users, []docstore.Predicate{
		{Field: "role", Op: docstore.OpEq, Value: role},
	}, docstore.Options{})
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(docs))
	for _, doc := range docs {
		var u User
		if err := fromDoc(doc, &u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
