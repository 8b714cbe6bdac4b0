package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"darwin.app/engine/common/llm"
	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/repohost"
)

const defaultMaxTurns = 40

var ErrNoChanges = errors.New("agent finished without changing any file")

// Request is one fix attempt. Feedback is nil for the initial fix and set
// for a review remediation.
type Request struct {
	Task     *model.Task
	RepoDir  string
	Context  string // similar fixes and product rules, already formatted
	Feedback *repohost.Feedback
}

type Result struct {
	Summary      string
	FilesChanged []string
	Turns        int
}

// Orchestrator edits a work tree until the task is addressed. An attempt
// that changes nothing is a failure.
type Orchestrator interface {
	Fix(ctx context.Context, req Request) (*Result, error)
}

type Config struct {
	MaxTurns  int
	MaxTokens int
}

type fixAgent struct {
	llm llm.AgentClient
	cfg Config
}

func New(client llm.AgentClient, cfg Config) Orchestrator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	return &fixAgent{llm: client, cfg: cfg}
}

func (a *fixAgent) Fix(ctx context.Context, req Request) (*Result, error) {
	if req.Task == nil || req.RepoDir == "" {
		return nil, fmt.Errorf("task and repo dir are required")
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TaskID:    logger.Ptr(req.Task.ID),
		Component: "darwin.agent",
	})

	tree := newWorkTree(req.RepoDir)
	tools := tree.definitions()

	user := initialPrompt(req.Task, req.Context)
	if req.Feedback != nil {
		user = feedbackPrompt(req.Task, req.Feedback, req.Context)
	}
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}

	start := time.Now()
	var (
		lastContent string
		turns       int
	)
	for turns < a.cfg.MaxTurns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		turns++

		resp, err := a.llm.ChatWithTools(ctx, llm.AgentRequest{
			Messages:  messages,
			Tools:     tools,
			MaxTokens: a.cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("fix agent turn %d: %w", turns, err)
		}
		lastContent = resp.Content

		slog.DebugContext(ctx, "fix agent turn completed",
			"turn", turns,
			"prompt_tokens", resp.PromptTokens,
			"completion_tokens", resp.CompletionTokens,
			"tool_calls", len(resp.ToolCalls))

		if len(resp.ToolCalls) == 0 {
			break
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			out, err := tree.execute(ctx, tc.Name, tc.Arguments)
			if err != nil {
				out = fmt.Sprintf("Error: %s", err)
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    out,
				ToolCallID: tc.ID,
				IsError:    strings.HasPrefix(out, "Error: "),
			})
		}

		if tree.finished {
			break
		}
	}

	files := tree.changedFiles()
	summary := tree.summary
	if summary == "" {
		summary = strings.TrimSpace(lastContent)
	}

	slog.InfoContext(ctx, "fix agent completed",
		"turns", turns,
		"finished", tree.finished,
		"files_changed", len(files),
		"duration_ms", time.Since(start).Milliseconds())

	if len(files) == 0 {
		return nil, ErrNoChanges
	}
	if summary == "" {
		summary = fmt.Sprintf("Changed %d file(s)", len(files))
	}
	return &Result{Summary: summary, FilesChanged: files, Turns: turns}, nil
}
