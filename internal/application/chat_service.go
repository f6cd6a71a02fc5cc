package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
	repo "github.com/lumenchat/lumenchat-backend/internal/domain/repository"
	"github.com/lumenchat/lumenchat-backend/internal/infrastructure/assistant"
)

// NoResponseText is returned when a run completes without producing an
// assistant message. Soft failure, not an error.
const NoResponseText = "The assistant did not return a response."

// AssistantClient is the slice of the assistant service the coordinator
// uses. Satisfied by *assistant.Client; fakes implement it in tests.
type AssistantClient interface {
	CreateThread(ctx context.Context) (*assistant.Thread, error)
	CreateMessage(ctx context.Context, threadID, content string) (*assistant.Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (*assistant.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []assistant.ToolOutput) (*assistant.Run, error)
	ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error)
}

// ToolFunc synthesizes the output for one tool call.
type ToolFunc func(ctx context.Context, arguments string) (string, error)

// ChatService drives one conversation turn through the assistant run
// protocol: append message, start run, poll to a terminal status (answering
// tool calls along the way), then fetch the reply.
type ChatService struct {
	Repo      repo.UserRepository
	Assistant AssistantClient
	Logger    *logrus.Logger

	AssistantID  string
	PollInterval time.Duration
	MaxPolls     int

	// Tools dispatches requires_action calls by function name. Unrecognized
	// names get a stub output so the run can still make progress.
	Tools map[string]ToolFunc

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex
}

func NewChatService(r repo.UserRepository, client AssistantClient, logger *logrus.Logger, assistantID string, pollInterval time.Duration, maxPolls int) *ChatService {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 120
	}
	return &ChatService{
		Repo:         r,
		Assistant:    client,
		Logger:       logger,
		AssistantID:  assistantID,
		PollInterval: pollInterval,
		MaxPolls:     maxPolls,
		Tools:        map[string]ToolFunc{},
		threadLocks:  map[string]*sync.Mutex{},
	}
}

// threadLock serializes turns per thread so two concurrent chats on the same
// thread cannot interleave run protocols.
func (s *ChatService) threadLock(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.threadLocks[threadID]
	if !ok {
		l = &sync.Mutex{}
		s.threadLocks[threadID] = l
	}
	return l
}

// NewThread creates a conversation thread for u, enforcing the trial thread
// cap before anything is created upstream.
func (s *ChatService) NewThread(ctx context.Context, u *entity.User) (string, error) {
	if u.PlanStatus == entity.PlanTrial && u.ThreadCount >= entity.TrialThreadLimit {
		return "", ErrThreadLimit
	}

	t, err := s.Assistant.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}

	count, err := s.Repo.IncrementThreadCount(ctx, u.ID)
	if err != nil {
		return "", fmt.Errorf("record thread: %w", err)
	}
	u.ThreadCount = count

	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"user_id":      u.ID,
			"thread_id":    t.ID,
			"thread_count": count,
		}).Info("thread created")
	}
	return t.ID, nil
}

// SendMessage runs one chat turn and returns the assistant's reply text.
// The work runs on a context detached from the request so a client
// disconnect cannot abandon a run mid-protocol; the poll ceiling bounds the
// detached work instead.
func (s *ChatService) SendMessage(ctx context.Context, threadID, message string) (string, error) {
	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	ctx = context.WithoutCancel(ctx)

	if _, err := s.Assistant.CreateMessage(ctx, threadID, message); err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}

	run, err := s.Assistant.CreateRun(ctx, threadID, s.AssistantID)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}

	run, err = s.pollRun(ctx, threadID, run)
	if err != nil {
		return "", err
	}

	switch run.Status {
	case assistant.RunCompleted:
		return s.fetchReply(ctx, threadID, run.ID)
	case assistant.RunFailed:
		if run.LastError != nil {
			return "", fmt.Errorf("run failed: %s", run.LastError.Message)
		}
		return "", fmt.Errorf("run failed")
	default:
		return "", fmt.Errorf("run ended with unexpected status %q", run.Status)
	}
}

// pollRun polls at a fixed interval until the run leaves its pending
// statuses, answering tool calls whenever the run blocks on them. Multiple
// requires_action cycles per run are expected.
func (s *ChatService) pollRun(ctx context.Context, threadID string, run *assistant.Run) (*assistant.Run, error) {
	for polls := 0; run.Status.Pending(); polls++ {
		if polls >= s.MaxPolls {
			return nil, ErrRunTimeout
		}

		if run.Status == assistant.RunRequiresAction {
			updated, err := s.answerToolCalls(ctx, threadID, run)
			if err != nil {
				return nil, err
			}
			run = updated
			continue
		}

		select {
		case <-time.After(s.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		updated, err := s.Assistant.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, fmt.Errorf("poll run: %w", err)
		}
		run = updated
	}
	return run, nil
}

// answerToolCalls synthesizes an output for every requested call and submits
// them together in one batch.
func (s *ChatService) answerToolCalls(ctx context.Context, threadID string, run *assistant.Run) (*assistant.Run, error) {
	if run.RequiredAction == nil {
		return nil, fmt.Errorf("run %s requires action but carries none", run.ID)
	}

	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	outputs := make([]assistant.ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, assistant.ToolOutput{
			ToolCallID: call.ID,
			Output:     s.runTool(ctx, call),
		})
	}

	updated, err := s.Assistant.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
	if err != nil {
		return nil, fmt.Errorf("submit tool outputs: %w", err)
	}
	return updated, nil
}

func (s *ChatService) runTool(ctx context.Context, call assistant.ToolCall) string {
	name := call.Function.Name
	fn, ok := s.Tools[name]
	if !ok {
		if s.Logger != nil {
			s.Logger.WithField("tool", name).Warn("unrecognized tool call")
		}
		return `{"error": "tool not available"}`
	}
	out, err := fn(ctx, call.Function.Arguments)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("tool", name).Warn("tool call failed")
		}
		return `{"error": "tool execution failed"}`
	}
	return out
}

// fetchReply selects the newest assistant-authored text message belonging to
// the run. A completed run with no such message yields the sentinel text.
func (s *ChatService) fetchReply(ctx context.Context, threadID, runID string) (string, error) {
	messages, err := s.Assistant.ListMessages(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("fetch messages: %w", err)
	}
	for _, m := range messages {
		if m.Role != "assistant" || m.RunID != runID {
			continue
		}
		if text, ok := m.Text(); ok {
			return text, nil
		}
	}
	return NoResponseText, nil
}
