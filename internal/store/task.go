package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"darwin.app/engine/internal/model"
)

type taskStore struct {
	rdb *redis.Client
}

func newTaskStore(rdb *redis.Client) TaskStore {
	return &taskStore{rdb: rdb}
}

func (s *taskStore) Create(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = model.TaskStatusOpen
	}
	if task.FixStatus == "" {
		task.FixStatus = model.FixStatusIdle
	}

	fields := map[string]any{
		"id":               task.ID,
		"topic_id":         task.TopicID,
		"category":         string(task.Category),
		"title":            task.Title,
		"summary":          task.Summary,
		"suggested_action": task.SuggestedAction,
		"confidence":       strconv.FormatFloat(task.Confidence, 'f', -1, 64),
		"status":           string(task.Status),
		"fix_status":       string(task.FixStatus),
		"fix_iterations":   task.FixIterations,
		"created_at":       unixString(task.CreatedAt),
		"updated_at":       unixString(task.UpdatedAt),
	}
	if task.Severity != nil {
		fields["severity"] = string(*task.Severity)
	}
	if task.Product != nil {
		fields["product"] = *task.Product
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, TaskKey(task.ID), fields)
	pipe.ZAdd(ctx, tasksByCreated, redis.Z{Score: float64(task.CreatedAt.Unix()), Member: task.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("creating task %s: %w", task.ID, err)
	}
	return nil
}

func (s *taskStore) Get(ctx context.Context, id string) (*model.Task, error) {
	m, err := s.rdb.HGetAll(ctx, TaskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return taskFromHash(m), nil
}

func taskFromHash(m map[string]string) *model.Task {
	t := &model.Task{
		ID:              m["id"],
		TopicID:         m["topic_id"],
		Category:        model.Category(m["category"]),
		Title:           m["title"],
		Summary:         m["summary"],
		SuggestedAction: m["suggested_action"],
		Confidence:      parseFloat(m["confidence"]),
		Product:         optString(m, "product"),
		Status:          model.TaskStatus(m["status"]),
		IssueURL:        optString(m, "github_issue_url"),
		IssueNumber:     optInt(m, "github_issue_number"),
		FixStatus:       model.FixStatus(m["fix_status"]),
		FixPRURL:        optString(m, "fix_pr_url"),
		FixPRNumber:     optInt(m, "fix_pr_number"),
		FixBranch:       optString(m, "fix_branch"),
		FixIterations:   parseInt(m["fix_iterations"]),
		FixError:        optString(m, "fix_error"),
		FilesChanged:    stringList(m, "files_changed"),
		CreatedAt:       parseUnix(m["created_at"]),
		UpdatedAt:       parseUnix(m["updated_at"]),
	}
	if t.FixStatus == "" {
		t.FixStatus = model.FixStatusIdle
	}
	if v := optString(m, "severity"); v != nil {
		sev := model.Severity(*v)
		t.Severity = &sev
	}
	if v := optString(m, "fix_pr_status"); v != nil {
		st := model.PRStatus(*v)
		t.FixPRStatus = &st
	}
	if v := optString(m, "fix_outcome"); v != nil {
		o := model.FixOutcome(*v)
		t.FixOutcome = &o
	}
	return t
}

// List returns tasks newest first, filtered in memory. Limit bounds the
// result, not the scan.
func (s *taskStore) List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.rdb.ZRevRange(ctx, tasksByCreated, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	tasks := make([]model.Task, 0, limit)
	const page = 100
	for start := 0; start < len(ids) && len(tasks) < limit; start += page {
		end := min(start+page, len(ids))

		pipe := s.rdb.Pipeline()
		cmds := make([]*redis.MapStringStringCmd, 0, end-start)
		for _, id := range ids[start:end] {
			cmds = append(cmds, pipe.HGetAll(ctx, TaskKey(id)))
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("loading tasks: %w", err)
		}

		for _, cmd := range cmds {
			m := cmd.Val()
			if len(m) == 0 {
				continue
			}
			t := taskFromHash(m)
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			if filter.Category != "" && t.Category != filter.Category {
				continue
			}
			tasks = append(tasks, *t)
			if len(tasks) == limit {
				break
			}
		}
	}
	return tasks, nil
}

func (s *taskStore) UpdateStatus(ctx context.Context, id string, status model.TaskStatus) error {
	return s.setExisting(ctx, id, map[string]any{"status": string(status)})
}

func (s *taskStore) SetIssue(ctx context.Context, id, url string, number int) error {
	return s.setExisting(ctx, id, map[string]any{
		"github_issue_url":    url,
		"github_issue_number": number,
	})
}

func (s *taskStore) UpdateFix(ctx context.Context, id string, u model.FixUpdate) error {
	fields := map[string]any{}
	if u.Status != nil {
		fields["fix_status"] = string(*u.Status)
	}
	if u.PRURL != nil {
		fields["fix_pr_url"] = *u.PRURL
	}
	if u.PRNumber != nil {
		fields["fix_pr_number"] = *u.PRNumber
	}
	if u.Branch != nil {
		fields["fix_branch"] = *u.Branch
	}
	if u.PRStatus != nil {
		fields["fix_pr_status"] = string(*u.PRStatus)
	}
	if u.Outcome != nil {
		fields["fix_outcome"] = string(*u.Outcome)
	}
	if u.Error != nil {
		fields["fix_error"] = *u.Error
	}
	if u.FilesChanged != nil {
		fields["files_changed"] = encodeList(u.FilesChanged)
	}

	exists, err := s.rdb.Exists(ctx, TaskKey(id)).Result()
	if err != nil {
		return fmt.Errorf("checking task %s: %w", id, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	fields["updated_at"] = unixString(time.Now())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, TaskKey(id), fields)
	if u.ClearError && u.Error == nil {
		pipe.HDel(ctx, TaskKey(id), "fix_error")
	}
	if u.IterationDelta != 0 {
		pipe.HIncrBy(ctx, TaskKey(id), "fix_iterations", int64(u.IterationDelta))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("updating fix state of task %s: %w", id, err)
	}
	return nil
}

// claimFix runs the fix preconditions and the running transition inside
// Redis so two workers cannot both pass the check.
// ARGV: require_no_pr ("1"/"0"), max_iterations, updated_at.
var claimFix = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 'missing'
end
local f = redis.call('HMGET', KEYS[1], 'fix_status', 'fix_pr_url', 'fix_iterations')
if f[1] == 'running' then
	return 'running'
end
if ARGV[1] == '1' and f[2] and f[2] ~= '' then
	return 'has_pr'
end
local max = tonumber(ARGV[2])
if max > 0 and (tonumber(f[3]) or 0) >= max then
	return 'capped'
end
redis.call('HSET', KEYS[1], 'fix_status', 'running', 'updated_at', ARGV[3])
redis.call('HDEL', KEYS[1], 'fix_error')
if max > 0 then
	redis.call('HINCRBY', KEYS[1], 'fix_iterations', 1)
end
return 'ok'
`)

func (s *taskStore) ClaimFix(ctx context.Context, id string, claim model.FixClaim) error {
	requireNoPR := "0"
	if claim.RequireNoPR {
		requireNoPR = "1"
	}
	res, err := claimFix.Run(ctx, s.rdb, []string{TaskKey(id)},
		requireNoPR, claim.MaxIterations, unixString(time.Now())).Text()
	if err != nil {
		return fmt.Errorf("claiming fix for task %s: %w", id, err)
	}
	switch res {
	case "ok":
		return nil
	case "missing":
		return ErrNotFound
	case "running":
		return ErrFixRunning
	case "has_pr":
		return ErrHasPR
	case "capped":
		return ErrIterationCap
	default:
		return fmt.Errorf("claiming fix for task %s: unexpected reply %q", id, res)
	}
}

func (s *taskStore) setExisting(ctx context.Context, id string, fields map[string]any) error {
	exists, err := s.rdb.Exists(ctx, TaskKey(id)).Result()
	if err != nil {
		return fmt.Errorf("checking task %s: %w", id, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	fields["updated_at"] = unixString(time.Now())
	if err := s.rdb.HSet(ctx, TaskKey(id), fields).Err(); err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}
	return nil
}
