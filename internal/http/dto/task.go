package dto

import "darwin.app/engine/internal/model"

type UpdateTaskStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type TaskListResponse struct {
	Tasks []model.Task `json:"tasks"`
	Count int          `json:"count"`
}

type TopicListResponse struct {
	Topics []model.Topic `json:"topics"`
	Count  int           `json:"count"`
}

type CreateIssueResponse struct {
	IssueURL    string `json:"github_issue_url"`
	IssueNumber int    `json:"github_issue_number"`
}

type FixQueuedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}
