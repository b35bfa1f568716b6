// Package facts is the thin structured-record layer for long-lived facts
// about the user — preferences and tracked tasks — independent of any single
// session.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pearl-assistant/pearl/internal/durable"
	"github.com/pearl-assistant/pearl/internal/schema"
)

// Store provides preference and task CRUD over the durable store.
type Store struct {
	records durable.Store
	now     func() time.Time
}

// New creates a facts Store.
func New(records durable.Store) *Store {
	return &Store{records: records, now: time.Now}
}

func prefKey(userID, key string) string { return userID + ":" + key }

// LearnPreference upserts the current value for (userID, key), overwriting
// value, confidence, and lastConfirmedAt. The replaced preference, if any, is
// returned so callers can audit revisions instead of losing them silently.
func (s *Store) LearnPreference(ctx context.Context, userID, key, value, category string, confidence float64, learnedFrom string) (schema.UserPreference, *schema.UserPreference, error) {
	pref := schema.UserPreference{
		UserID:          userID,
		Category:        category,
		Key:             key,
		Value:           value,
		Confidence:      confidence,
		LearnedFrom:     learnedFrom,
		LastConfirmedAt: schema.NormalizeTime(s.now()),
	}
	if err := pref.Validate(); err != nil {
		return schema.UserPreference{}, nil, fmt.Errorf("learn preference: %w", err)
	}

	previous := s.getPreferenceRecord(ctx, userID, key)

	if err := s.records.Upsert(ctx, durable.TypePreference, prefKey(userID, key), pref); err != nil {
		return schema.UserPreference{}, nil, fmt.Errorf("learn preference: %w", err)
	}
	return pref, previous, nil
}

// GetPreference returns the current value for (userID, key), absent when
// never learned.
func (s *Store) GetPreference(ctx context.Context, userID, key string) (string, bool, error) {
	data, ok, err := s.records.Get(ctx, durable.TypePreference, prefKey(userID, key))
	if err != nil {
		return "", false, fmt.Errorf("get preference: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	var pref schema.UserPreference
	if err := json.Unmarshal(data, &pref); err != nil {
		return "", false, fmt.Errorf("get preference: decode: %w", err)
	}
	return pref.Value, true, nil
}

// GetPreferences lists the user's preferences, optionally restricted to one
// category, most recently confirmed first.
func (s *Store) GetPreferences(ctx context.Context, userID, category string) ([]schema.UserPreference, error) {
	filter := durable.Filter{"userId": userID}
	if category != "" {
		filter["category"] = category
	}
	rows, err := s.records.Query(ctx, durable.TypePreference, filter,
		durable.QueryOptions{OrderBy: "lastConfirmedAt", Descending: true})
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	out := make([]schema.UserPreference, 0, len(rows))
	for _, row := range rows {
		var pref schema.UserPreference
		if err := json.Unmarshal(row, &pref); err != nil {
			slog.Warn("skipping malformed preference record", "err", err)
			continue
		}
		out = append(out, pref)
	}
	return out, nil
}

func (s *Store) getPreferenceRecord(ctx context.Context, userID, key string) *schema.UserPreference {
	data, ok, err := s.records.Get(ctx, durable.TypePreference, prefKey(userID, key))
	if err != nil || !ok {
		return nil
	}
	var pref schema.UserPreference
	if err := json.Unmarshal(data, &pref); err != nil {
		return nil
	}
	return &pref
}

// CreateTask records a new pending task for the user.
func (s *Store) CreateTask(ctx context.Context, userID, title, description string, createdChannel schema.Channel) (schema.ActiveTask, error) {
	task := schema.ActiveTask{
		TaskID:         uuid.NewString(),
		UserID:         userID,
		Title:          title,
		Description:    description,
		Status:         schema.TaskPending,
		CreatedChannel: createdChannel,
		CreatedAt:      schema.NormalizeTime(s.now()),
	}
	if err := task.Validate(); err != nil {
		return schema.ActiveTask{}, fmt.Errorf("create task: %w", err)
	}
	if err := s.records.Create(ctx, durable.TypeTask, task.TaskID, task); err != nil {
		return schema.ActiveTask{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// GetActiveTasks lists the user's non-terminal tasks, newest first.
func (s *Store) GetActiveTasks(ctx context.Context, userID string) ([]schema.ActiveTask, error) {
	rows, err := s.records.Query(ctx, durable.TypeTask,
		durable.Filter{"userId": userID},
		durable.QueryOptions{OrderBy: "createdAt", Descending: true})
	if err != nil {
		return nil, fmt.Errorf("active tasks: %w", err)
	}

	out := make([]schema.ActiveTask, 0, len(rows))
	for _, row := range rows {
		var task schema.ActiveTask
		if err := json.Unmarshal(row, &task); err != nil {
			slog.Warn("skipping malformed task record", "err", err)
			continue
		}
		if task.Status.Terminal() {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

// Transition moves a task to a new status, enforcing the forward-only state
// machine. Terminal tasks and skipped states yield ErrInvalidTransition.
func (s *Store) Transition(ctx context.Context, taskID string, to schema.TaskStatus) (schema.ActiveTask, error) {
	data, ok, err := s.records.Get(ctx, durable.TypeTask, taskID)
	if err != nil {
		return schema.ActiveTask{}, fmt.Errorf("transition task: %w", err)
	}
	if !ok {
		return schema.ActiveTask{}, fmt.Errorf("transition task %s: %w", taskID, schema.ErrNotFound)
	}

	var task schema.ActiveTask
	if err := json.Unmarshal(data, &task); err != nil {
		return schema.ActiveTask{}, fmt.Errorf("transition task: decode: %w", err)
	}

	if !schema.CanTransition(task.Status, to) {
		return schema.ActiveTask{}, fmt.Errorf("task %s: %s -> %s: %w",
			taskID, task.Status, to, schema.ErrInvalidTransition)
	}

	task.Status = to
	if to.Terminal() {
		done := schema.NormalizeTime(s.now())
		task.CompletedAt = &done
	}

	if err := s.records.Upsert(ctx, durable.TypeTask, taskID, task); err != nil {
		return schema.ActiveTask{}, fmt.Errorf("transition task: %w", err)
	}
	return task, nil
}

// CompleteTask marks the task done.
func (s *Store) CompleteTask(ctx context.Context, taskID string) (schema.ActiveTask, error) {
	return s.Transition(ctx, taskID, schema.TaskDone)
}
