package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
	"github.com/lumenchat/lumenchat-backend/internal/infrastructure/assistant"
)

// fakeAssistant scripts the run states GetRun returns in order, so tests can
// walk the coordinator through any lifecycle without a real service.
type fakeAssistant struct {
	runStates []assistant.Run // consumed by GetRun in order
	afterTool assistant.Run   // returned by SubmitToolOutputs
	messages  []assistant.Message

	createdThreads  int
	createdMessages []string
	submitted       [][]assistant.ToolOutput
	createRunErr    error
}

func (f *fakeAssistant) CreateThread(context.Context) (*assistant.Thread, error) {
	f.createdThreads++
	return &assistant.Thread{ID: "thread_1"}, nil
}

func (f *fakeAssistant) CreateMessage(_ context.Context, threadID, content string) (*assistant.Message, error) {
	f.createdMessages = append(f.createdMessages, content)
	return &assistant.Message{ID: "msg_user", Role: "user"}, nil
}

func (f *fakeAssistant) CreateRun(context.Context, string, string) (*assistant.Run, error) {
	if f.createRunErr != nil {
		return nil, f.createRunErr
	}
	return &assistant.Run{ID: "run_1", Status: assistant.RunQueued}, nil
}

func (f *fakeAssistant) GetRun(context.Context, string, string) (*assistant.Run, error) {
	if len(f.runStates) == 0 {
		return &assistant.Run{ID: "run_1", Status: assistant.RunInProgress}, nil
	}
	next := f.runStates[0]
	f.runStates = f.runStates[1:]
	return &next, nil
}

func (f *fakeAssistant) SubmitToolOutputs(_ context.Context, _ string, _ string, outputs []assistant.ToolOutput) (*assistant.Run, error) {
	f.submitted = append(f.submitted, outputs)
	r := f.afterTool
	return &r, nil
}

func (f *fakeAssistant) ListMessages(context.Context, string) ([]assistant.Message, error) {
	return f.messages, nil
}

func textMessage(id, role, runID, text string) assistant.Message {
	m := assistant.Message{ID: id, Role: role, RunID: runID}
	var c assistant.MessageContent
	c.Type = "text"
	c.Text = &struct {
		Value string `json:"value"`
	}{Value: text}
	m.Content = []assistant.MessageContent{c}
	return m
}

func newTestChatService(fa *fakeAssistant, fr *fakeUserRepo) *ChatService {
	s := NewChatService(fr, fa, testLogger(), "asst_1", time.Millisecond, 120)
	return s
}

func TestSendMessageCompletedRunReturnsReply(t *testing.T) {
	fa := &fakeAssistant{
		runStates: []assistant.Run{
			{ID: "run_1", Status: assistant.RunInProgress},
			{ID: "run_1", Status: assistant.RunCompleted},
		},
		messages: []assistant.Message{
			textMessage("msg_2", "assistant", "run_1", "Hello there."),
			textMessage("msg_1", "user", "", "Hi"),
		},
	}
	svc := newTestChatService(fa, newFakeUserRepo())

	reply, err := svc.SendMessage(context.Background(), "thread_1", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", reply)
	assert.Equal(t, []string{"Hi"}, fa.createdMessages)
}

func TestSendMessageAnswersToolCallsInOneBatch(t *testing.T) {
	blocked := assistant.Run{ID: "run_1", Status: assistant.RunRequiresAction}
	blocked.RequiredAction = &assistant.RequiredAction{Type: "submit_tool_outputs"}
	call1 := assistant.ToolCall{ID: "call_1", Type: "function"}
	call1.Function.Name = "get_weather"
	call1.Function.Arguments = `{"city":"Oslo"}`
	call2 := assistant.ToolCall{ID: "call_2", Type: "function"}
	call2.Function.Name = "not_a_tool"
	blocked.RequiredAction.SubmitToolOutputs.ToolCalls = []assistant.ToolCall{call1, call2}

	fa := &fakeAssistant{
		runStates: []assistant.Run{blocked},
		afterTool: assistant.Run{ID: "run_1", Status: assistant.RunCompleted},
		messages: []assistant.Message{
			textMessage("msg_2", "assistant", "run_1", "Cold in Oslo."),
		},
	}
	svc := newTestChatService(fa, newFakeUserRepo())
	svc.Tools["get_weather"] = func(ctx context.Context, args string) (string, error) {
		return `{"temp": -4}`, nil
	}

	reply, err := svc.SendMessage(context.Background(), "thread_1", "weather?")
	require.NoError(t, err)
	assert.Equal(t, "Cold in Oslo.", reply)

	require.Len(t, fa.submitted, 1, "all outputs go up in a single batch")
	batch := fa.submitted[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "call_1", batch[0].ToolCallID)
	assert.Equal(t, `{"temp": -4}`, batch[0].Output)
	assert.Equal(t, "call_2", batch[1].ToolCallID)
	assert.JSONEq(t, `{"error": "tool not available"}`, batch[1].Output)
}

func TestSendMessageFailedRunSurfacesProviderError(t *testing.T) {
	fa := &fakeAssistant{
		runStates: []assistant.Run{
			{ID: "run_1", Status: assistant.RunFailed, LastError: &assistant.RunError{Code: "rate_limit_exceeded", Message: "too many requests"}},
		},
	}
	svc := newTestChatService(fa, newFakeUserRepo())

	_, err := svc.SendMessage(context.Background(), "thread_1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many requests")
}

func TestSendMessageCompletedWithoutReplyReturnsSentinel(t *testing.T) {
	fa := &fakeAssistant{
		runStates: []assistant.Run{{ID: "run_1", Status: assistant.RunCompleted}},
		messages: []assistant.Message{
			textMessage("msg_old", "assistant", "run_0", "stale reply from an earlier run"),
		},
	}
	svc := newTestChatService(fa, newFakeUserRepo())

	reply, err := svc.SendMessage(context.Background(), "thread_1", "hi")
	require.NoError(t, err)
	assert.Equal(t, NoResponseText, reply)
}

func TestSendMessagePollCeilingTimesOut(t *testing.T) {
	// fakeAssistant returns in_progress forever once its script is empty.
	fa := &fakeAssistant{}
	svc := newTestChatService(fa, newFakeUserRepo())
	svc.MaxPolls = 5

	_, err := svc.SendMessage(context.Background(), "thread_1", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunTimeout))
}

func TestSendMessageSurvivesRequestCancellation(t *testing.T) {
	fa := &fakeAssistant{
		runStates: []assistant.Run{
			{ID: "run_1", Status: assistant.RunInProgress},
			{ID: "run_1", Status: assistant.RunCompleted},
		},
		messages: []assistant.Message{
			textMessage("msg_2", "assistant", "run_1", "done"),
		},
	}
	svc := newTestChatService(fa, newFakeUserRepo())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already-canceled request context must not abort the turn

	reply, err := svc.SendMessage(ctx, "thread_1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", reply)
}

func TestNewThreadEnforcesTrialLimit(t *testing.T) {
	u := trialUser("u1", time.Now().Add(24*time.Hour))
	u.ThreadCount = entity.TrialThreadLimit
	fr := newFakeUserRepo(u)
	fa := &fakeAssistant{}
	svc := newTestChatService(fa, fr)

	_, err := svc.NewThread(context.Background(), u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrThreadLimit))
	assert.Zero(t, fa.createdThreads, "nothing is created upstream once the cap is hit")
	assert.Equal(t, entity.TrialThreadLimit, fr.get("u1").ThreadCount)
}

func TestNewThreadIncrementsCount(t *testing.T) {
	u := trialUser("u1", time.Now().Add(24*time.Hour))
	u.ThreadCount = 3
	fr := newFakeUserRepo(u)
	fa := &fakeAssistant{}
	svc := newTestChatService(fa, fr)

	id, err := svc.NewThread(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", id)
	assert.Equal(t, 4, u.ThreadCount)
	assert.Equal(t, 4, fr.get("u1").ThreadCount)
}

func TestNewThreadPremiumUnlimited(t *testing.T) {
	u := &entity.User{ID: "u1", PlanStatus: entity.PlanPremium, ThreadCount: 500}
	fr := newFakeUserRepo(u)
	svc := newTestChatService(&fakeAssistant{}, fr)

	_, err := svc.NewThread(context.Background(), u)
	require.NoError(t, err)
}
