package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"rick-api/metrics"
	"rick-api/models"
	"rick-api/services"
)

var (
	// ErrCompletion wraps every failure of an outbound model call
	ErrCompletion = errors.New("completion failed")
	// ErrStore wraps every persistence failure during a turn
	ErrStore = errors.New("store failed")
)

// Store is the persistence a turn needs
type Store interface {
	EnsureConversation(ctx context.Context, id uuid.UUID, title string) (uuid.UUID, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role models.Role, content string) (models.Message, error)
}

// ChatWorkflows runs the reply pipeline for a single turn
type ChatWorkflows struct {
	store  Store
	llm    services.Completer
	logger *zap.Logger
}

// NewChatWorkflows creates a new ChatWorkflows instance
func NewChatWorkflows(store Store, llm services.Completer, logger *zap.Logger) *ChatWorkflows {
	return &ChatWorkflows{
		store:  store,
		llm:    llm,
		logger: logger,
	}
}

// TurnInput contains the input of one turn. A nil ConversationID starts a new conversation.
type TurnInput struct {
	Message        string
	ConversationID uuid.UUID
	Mode           string
}

// stepRunner executes one side-effecting step of a turn
type stepRunner func(step func(ctx context.Context) (string, error)) (string, error)

// RunTurn executes the turn inline, in the caller's goroutine
func (w *ChatWorkflows) RunTurn(ctx context.Context, input TurnInput) (models.Reply, error) {
	return w.turn(input, func(step func(context.Context) (string, error)) (string, error) {
		return step(ctx)
	})
}

// TurnWorkflow is the durable version of RunTurn. Every store write and model
// call is a DBOS step, so a recovered workflow resumes after the last completed step.
func (w *ChatWorkflows) TurnWorkflow(ctx dbos.DBOSContext, input TurnInput) (models.Reply, error) {
	return w.turn(input, func(step func(context.Context) (string, error)) (string, error) {
		return dbos.RunAsStep(ctx, func(stepCtx context.Context) (string, error) {
			return step(stepCtx)
		})
	})
}

// Register registers the durable workflows with DBOS (must be called before Launch)
func (w *ChatWorkflows) Register(dbosCtx dbos.DBOSContext) {
	dbos.RegisterWorkflow(dbosCtx, w.TurnWorkflow)
}

// turn sequences the steps of one reply. Metrics and logs that describe a side
// effect are emitted inside the step performing it, so a recovered workflow
// replaying recorded steps does not count them twice.
func (w *ChatWorkflows) turn(input TurnInput, run stepRunner) (models.Reply, error) {
	// Step 1: resolve the conversation, creating it on the first message
	idText, err := run(func(ctx context.Context) (string, error) {
		id, err := w.store.EnsureConversation(ctx, input.ConversationID, conversationTitle(input.Message))
		if err != nil {
			return "", err
		}
		if input.ConversationID == uuid.Nil {
			metrics.ConversationsCreatedTotal.Inc()
		}
		return id.String(), nil
	})
	if err != nil {
		return models.Reply{}, fmt.Errorf("%w: resolve conversation: %w", ErrStore, err)
	}
	conversationID, err := uuid.Parse(idText)
	if err != nil {
		return models.Reply{}, fmt.Errorf("%w: conversation id %q: %w", ErrStore, idText, err)
	}

	// Step 2: log the user message before anything can fail upstream
	if err := w.appendMessage(run, conversationID, models.RoleUser, input.Message, nil); err != nil {
		return models.Reply{}, err
	}

	replyType := models.ReplyAnswer
	var content string
	if NeedsClarification(input.Message) {
		replyType = models.ReplyQuestions
		content, err = w.complete(run, "clarify", clarifyPrompt(input.Message), clarifyTemperature)
		if err != nil {
			return models.Reply{}, err
		}
	} else {
		draft, err := w.complete(run, "draft", draftPrompt(input.Message), draftTemperature)
		if err != nil {
			return models.Reply{}, err
		}
		content, err = w.complete(run, "refine", refinePrompt(draft), refineTemperature)
		if err != nil {
			return models.Reply{}, err
		}
	}

	err = w.appendMessage(run, conversationID, models.RoleAssistant, content, func() {
		metrics.TurnsTotal.WithLabelValues(string(replyType)).Inc()
		w.logger.Info("turn completed",
			zap.String("conversation_id", conversationID.String()),
			zap.String("type", string(replyType)),
			zap.String("mode", input.Mode))
	})
	if err != nil {
		return models.Reply{}, err
	}

	return models.Reply{
		Type:           replyType,
		Content:        content,
		ConversationID: conversationID,
	}, nil
}

// appendMessage stores one message as a step. stored, when set, runs inside
// the step once the write succeeded.
func (w *ChatWorkflows) appendMessage(run stepRunner, conversationID uuid.UUID, role models.Role, content string, stored func()) error {
	_, err := run(func(ctx context.Context) (string, error) {
		msg, err := w.store.AppendMessage(ctx, conversationID, role, content)
		if err != nil {
			return "", err
		}
		if stored != nil {
			stored()
		}
		return msg.ID.String(), nil
	})
	if err != nil {
		return fmt.Errorf("%w: log %s message: %w", ErrStore, role, err)
	}
	return nil
}

func (w *ChatWorkflows) complete(run stepRunner, pass string, messages []models.ChatMessage, temperature float64) (string, error) {
	text, err := run(func(ctx context.Context) (string, error) {
		metrics.CompletionCallsTotal.WithLabelValues(pass).Inc()
		text, err := w.llm.Complete(ctx, messages, temperature)
		if err != nil {
			metrics.CompletionErrorsTotal.WithLabelValues(pass).Inc()
			w.logger.Error("completion failed", zap.String("pass", pass), zap.Error(err))
			return "", err
		}
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrCompletion, pass, err)
	}
	return text, nil
}

// DurableTurns runs turns as DBOS workflows
type DurableTurns struct {
	dbosCtx   dbos.DBOSContext
	workflows *ChatWorkflows
}

// NewDurableTurns wraps ChatWorkflows whose TurnWorkflow is registered with dbosCtx
func NewDurableTurns(dbosCtx dbos.DBOSContext, wf *ChatWorkflows) *DurableTurns {
	return &DurableTurns{dbosCtx: dbosCtx, workflows: wf}
}

// RunTurn starts the turn workflow and waits for its result. The workflow runs
// under the DBOS context, so cancelling ctx does not interrupt it.
func (d *DurableTurns) RunTurn(_ context.Context, input TurnInput) (models.Reply, error) {
	handle, err := dbos.RunWorkflow(d.dbosCtx, d.workflows.TurnWorkflow, input)
	if err != nil {
		return models.Reply{}, fmt.Errorf("start turn workflow: %w", err)
	}
	return handle.GetResult()
}
