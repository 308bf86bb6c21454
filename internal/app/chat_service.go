package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"pdfchat/internal/ai"
	"pdfchat/internal/model"
	"pdfchat/internal/rag"
	"pdfchat/internal/vectorindex"
)

const (
	searchToolName = "search_documents"
	searchToolDesc = "Search the uploaded PDF documents for passages relevant to a question. Returns passages tagged with their page as [Source: Page N]."

	DefaultSystemPrompt = `You are a helpful assistant that answers questions about the user's uploaded PDF documents.
Look up the documents with the search_documents tool before answering.
Base the answer on the retrieved passages only and cite them with [Page N].
If the passages do not contain the answer, say clearly that no relevant information was found.`

	noRelevantContext = "No relevant information was found in the uploaded documents."
	turnErrorMessage  = "An error occurred while processing your request."
	timeoutMessage    = "The model provider did not respond in time. Please try again."
	emptyAnswer       = "The model returned an empty response."
	dummyAssistant    = "Okay."

	defaultStreamBuffer = 256
	saveTimeout         = 10 * time.Second
	releaseTimeout      = 3 * time.Second
)

type ModelResolver interface {
	Resolve(ctx context.Context, slug, credential string) (einomodel.ToolCallingChatModel, error)
	DefaultModel() string
}

type ConversationStore interface {
	Load(ctx context.Context, chatID string) (*model.Conversation, error)
	Save(ctx context.Context, conv *model.Conversation) error
	List(ctx context.Context, userID string) ([]model.Chat, error)
	Delete(ctx context.Context, chatID string) error
}

// TurnGuard admits each turn id once and holds a per-chat lock while a
// turn of that chat is running.
type TurnGuard interface {
	Acquire(ctx context.Context, chatID, turnID string) (bool, error)
	Release(ctx context.Context, chatID, turnID string) error
	Lock(ctx context.Context, chatID, owner string) (bool, error)
	Unlock(ctx context.Context, chatID, owner string) error
}

type ContextSearcher interface {
	Context(ctx context.Context, query string, filter vectorindex.Filter) (string, []rag.Passage, error)
}

type ChatOptions struct {
	// ForceRetrieval searches before the first model call instead of
	// letting the model decide whether to call the search tool.
	ForceRetrieval     bool
	StreamBuffer       int
	MaxHistoryMessages int
	SystemPrompt       string
}

type ChatService struct {
	models   ModelResolver
	store    ConversationStore
	guard    TurnGuard
	searcher ContextSearcher
	opts     ChatOptions
}

// NewChatService wires the orchestrator. A nil guard falls back to an
// in-process one, which is enough for a single process such as the CLI.
func NewChatService(models ModelResolver, store ConversationStore, guard TurnGuard, searcher ContextSearcher, opts ChatOptions) *ChatService {
	if guard == nil {
		guard = newLocalTurnGuard()
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = defaultStreamBuffer
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &ChatService{
		models:   models,
		store:    store,
		guard:    guard,
		searcher: searcher,
		opts:     opts,
	}
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TurnInput struct {
	ChatID     string
	TurnID     string
	UserID     string
	Credential string
	ModelSlug  string
	DocumentID string
	// Messages ends with the new user message. Earlier entries only seed a
	// chat that has no stored history yet.
	Messages []ChatMessage
}

func (s *ChatService) GetConversation(ctx context.Context, chatID string) (*model.Conversation, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, ErrInvalidInput
	}
	conv, err := s.store.Load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	return conv, nil
}

// ListConversations returns the caller's chats, newest first. Callers
// without an identity have no listable chats.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]model.Chat, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return []model.Chat{}, nil
	}
	chats, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	return chats, nil
}

// DeleteConversation removes a chat owned by userID. It is refused while a
// turn of the chat is running.
func (s *ChatService) DeleteConversation(ctx context.Context, chatID, userID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return ErrInvalidInput
	}
	owner := "delete:" + uuid.NewString()
	ok, err := s.guard.Lock(ctx, chatID, owner)
	if err != nil {
		return fmt.Errorf("lock chat failed: %w", err)
	}
	if !ok {
		return ErrChatBusy
	}
	defer s.unlock(ctx, chatID, owner)

	conv, err := s.store.Load(ctx, chatID)
	if err != nil {
		return err
	}
	if conv == nil || (conv.UserID != "" && conv.UserID != strings.TrimSpace(userID)) {
		return ErrNotFound
	}
	return s.store.Delete(ctx, chatID)
}

// StreamTurn validates the request and starts the turn. Validation errors
// are returned before any provider is contacted; everything after that is
// reported on the event stream.
func (s *ChatService) StreamTurn(ctx context.Context, input TurnInput) (*Turn, error) {
	if strings.TrimSpace(input.Credential) == "" && strings.TrimSpace(input.UserID) == "" {
		return nil, ErrUnauthenticated
	}
	question, err := validateMessages(input.Messages)
	if err != nil {
		return nil, err
	}

	chatID := strings.TrimSpace(input.ChatID)
	if chatID == "" {
		chatID = uuid.NewString()
	}
	turnID := strings.TrimSpace(input.TurnID)
	if turnID == "" {
		turnID = uuid.NewString()
	}
	slug := strings.TrimSpace(input.ModelSlug)
	if slug == "" {
		slug = s.models.DefaultModel()
	}

	ok, err := s.guard.Acquire(ctx, chatID, turnID)
	if err != nil {
		return nil, fmt.Errorf("acquire turn failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateTurn
	}
	// the chat lock is held from here until the turn is finalized, so the
	// history loaded below cannot be overtaken by another turn
	ok, err = s.guard.Lock(ctx, chatID, turnID)
	if err != nil {
		s.release(ctx, chatID, turnID)
		return nil, fmt.Errorf("lock chat failed: %w", err)
	}
	if !ok {
		s.release(ctx, chatID, turnID)
		return nil, ErrChatBusy
	}

	run, err := s.prepare(ctx, input, chatID, turnID, slug, question)
	if err != nil {
		s.unlock(ctx, chatID, turnID)
		s.release(ctx, chatID, turnID)
		return nil, err
	}

	go run.execute()
	return &Turn{ChatID: chatID, TurnID: turnID, Events: run.events}, nil
}

func validateMessages(messages []ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: messages are empty", ErrInvalidInput)
	}
	for _, m := range messages {
		if !model.Role(m.Role).Valid() {
			return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, m.Role)
		}
	}
	last := messages[len(messages)-1]
	question := strings.TrimSpace(last.Content)
	if model.Role(last.Role) != model.RoleUser || question == "" {
		return "", fmt.Errorf("%w: the last message must be a non-empty user message", ErrInvalidInput)
	}
	return question, nil
}

func (s *ChatService) prepare(ctx context.Context, input TurnInput, chatID, turnID, slug, question string) (*turnRun, error) {
	conv, err := s.store.Load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = model.NewConversation(chatID, input.UserID)
		for _, m := range input.Messages[:len(input.Messages)-1] {
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			conv.Append(model.Role(m.Role), m.Content, "")
		}
	}

	chatModel, err := s.models.Resolve(ctx, slug, input.Credential)
	if err != nil {
		return nil, err
	}

	// the stored state only changes when the turn is finalized
	working := conv.Clone()
	working.TurnID = turnID
	if working.UserID == "" {
		working.UserID = input.UserID
	}
	working.Append(model.RoleUser, question, turnID)

	return &turnRun{
		svc:       s,
		ctx:       ctx,
		chatID:    chatID,
		turnID:    turnID,
		caps:      ai.Capabilities(slug),
		chatModel: chatModel,
		conv:      working,
		question:  question,
		filter:    vectorindex.Filter{DocumentID: strings.TrimSpace(input.DocumentID)},
		events:    make(chan Event, s.opts.StreamBuffer),
		state:     StateIdle,
	}, nil
}

func (s *ChatService) release(ctx context.Context, chatID, turnID string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.guard.Release(releaseCtx, chatID, turnID); err != nil {
		log.Printf("chat %s turn %s: release guard failed: %v", chatID, turnID, err)
	}
}

func (s *ChatService) unlock(ctx context.Context, chatID, owner string) {
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.guard.Unlock(unlockCtx, chatID, owner); err != nil {
		log.Printf("chat %s: unlock %s failed: %v", chatID, owner, err)
	}
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"description=The question or keywords to look up in the uploaded documents"`
}

func (s *ChatService) newSearchTool(filter vectorindex.Filter) (tool.InvokableTool, error) {
	return utils.InferTool(searchToolName, searchToolDesc, func(ctx context.Context, in searchArgs) (string, error) {
		block, passages, err := s.searcher.Context(ctx, in.Query, filter)
		if err != nil {
			return "", err
		}
		if block == "" {
			return noRelevantContext, nil
		}
		log.Printf("search %q: %d passages", in.Query, len(passages))
		return block, nil
	})
}

// turnRun is the state of one turn. It is owned by the goroutine running
// execute and is never shared.
type turnRun struct {
	svc       *ChatService
	ctx       context.Context
	chatID    string
	turnID    string
	caps      ai.ModelCapabilities
	chatModel einomodel.ToolCallingChatModel
	conv      *model.Conversation
	question  string
	filter    vectorindex.Filter
	events    chan Event
	state     TurnState
}

func (r *turnRun) execute() {
	var (
		answer string
		err    error
	)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("turn panicked: %v", p)
		}
		r.finalize(answer, err)
		close(r.events)
	}()

	answer, err = r.generate()
}

func (r *turnRun) generate() (string, error) {
	msgs := r.buildPrompt()
	search, err := r.svc.newSearchTool(r.filter)
	if err != nil {
		return "", fmt.Errorf("build search tool failed: %w", err)
	}

	if r.svc.opts.ForceRetrieval {
		msgs, err = r.forceRetrieval(msgs, search)
		if err != nil {
			return "", err
		}
	} else {
		var (
			answer   string
			answered bool
		)
		msgs, answer, answered, err = r.decide(msgs, search)
		if err != nil || answered {
			return answer, err
		}
	}

	r.transition(StateGenerating)
	return r.streamAnswer(r.chatModel, msgs)
}

// forceRetrieval runs the search up front and records it as if the model
// had called the tool.
func (r *turnRun) forceRetrieval(msgs []*schema.Message, search tool.InvokableTool) ([]*schema.Message, error) {
	r.transition(StateRetrievingContext)

	args, err := json.Marshal(searchArgs{Query: r.question})
	if err != nil {
		return nil, fmt.Errorf("marshal search args failed: %w", err)
	}
	call := schema.ToolCall{
		ID:   ai.NewToolCallID(r.caps.ToolCallIDStyle),
		Type: "function",
		Function: schema.FunctionCall{
			Name:      searchToolName,
			Arguments: string(args),
		},
	}
	result, err := r.invoke(search, call)
	if err != nil {
		return nil, err
	}
	return append(msgs,
		schema.AssistantMessage("", []schema.ToolCall{call}),
		schema.ToolMessage(result, call.ID),
	), nil
}

// decide lets the model choose between calling the search tool and
// answering directly. Nothing is forwarded until the stream ends: text that
// comes with a tool call is dropped, otherwise it is replayed as deltas.
func (r *turnRun) decide(msgs []*schema.Message, search tool.InvokableTool) ([]*schema.Message, string, bool, error) {
	r.transition(StateAwaitingToolDecision)

	info, err := search.Info(r.ctx)
	if err != nil {
		return nil, "", false, fmt.Errorf("search tool info failed: %w", err)
	}
	bound, err := r.chatModel.WithTools([]*schema.ToolInfo{info})
	if err != nil {
		return nil, "", false, ai.WrapProviderError(ai.ProviderModel, "bind tools", err)
	}
	sr, err := bound.Stream(r.ctx, msgs)
	if err != nil {
		return nil, "", false, ai.WrapProviderError(ai.ProviderModel, "stream", err)
	}
	defer sr.Close()

	var (
		chunks   []*schema.Message
		toolCall bool
	)
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", false, ai.WrapProviderError(ai.ProviderModel, "stream", err)
		}
		chunks = append(chunks, chunk)
		if len(chunk.ToolCalls) > 0 {
			toolCall = true
		}
	}
	if !toolCall {
		var answer strings.Builder
		for _, chunk := range chunks {
			if err := r.forward(chunk.Content, &answer); err != nil {
				return nil, "", false, err
			}
		}
		return msgs, answer.String(), true, nil
	}

	full, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, "", false, ai.WrapProviderError(ai.ProviderModel, "concat stream", err)
	}

	r.transition(StateRetrievingContext)
	calls := make([]schema.ToolCall, len(full.ToolCalls))
	copy(calls, full.ToolCalls)
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = ai.NewToolCallID(r.caps.ToolCallIDStyle)
		}
	}
	msgs = append(msgs, schema.AssistantMessage("", calls))
	for _, call := range calls {
		if call.Function.Name != searchToolName {
			msgs = append(msgs, schema.ToolMessage("unknown tool "+call.Function.Name, call.ID))
			continue
		}
		result, err := r.invoke(search, call)
		if err != nil {
			return nil, "", false, err
		}
		msgs = append(msgs, schema.ToolMessage(result, call.ID))
	}
	return msgs, "", false, nil
}

func (r *turnRun) invoke(search tool.InvokableTool, call schema.ToolCall) (string, error) {
	result, err := search.InvokableRun(r.ctx, call.Function.Arguments)
	if err != nil {
		return "", ai.WrapProviderError(ai.ProviderIndex, "search", err)
	}
	return result, nil
}

// streamAnswer forwards every delta in order and returns the full text.
// Closing the reader on return stops the upstream request.
func (r *turnRun) streamAnswer(cm einomodel.BaseChatModel, msgs []*schema.Message) (string, error) {
	sr, err := cm.Stream(r.ctx, msgs)
	if err != nil {
		return "", ai.WrapProviderError(ai.ProviderModel, "stream", err)
	}
	defer sr.Close()

	var answer strings.Builder
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return answer.String(), nil
		}
		if err != nil {
			return "", ai.WrapProviderError(ai.ProviderModel, "stream", err)
		}
		if err := r.forward(chunk.Content, &answer); err != nil {
			return "", err
		}
	}
}

func (r *turnRun) forward(delta string, answer *strings.Builder) error {
	if delta == "" {
		return nil
	}
	r.transition(StateStreaming)
	answer.WriteString(delta)
	if !r.emit(Event{Type: EventDelta, Delta: delta}) {
		return r.ctx.Err()
	}
	return nil
}

// finalize runs exactly once per turn. Only a successful turn touches the
// conversation store. The chat lock is dropped before the final event so a
// client may start its next turn as soon as it sees it.
func (r *turnRun) finalize(answer string, err error) {
	if err == nil {
		if strings.TrimSpace(answer) == "" {
			answer = emptyAnswer
		}
		msg := r.conv.Append(model.RoleAssistant, answer, r.turnID)

		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), saveTimeout)
		defer cancel()
		if err = r.svc.store.Save(saveCtx, r.conv); err == nil {
			r.transition(StateFinalized)
			r.svc.unlock(r.ctx, r.chatID, r.turnID)
			r.emit(Event{Type: EventDone, Message: &msg})
			return
		}
	}

	log.Printf("chat %s turn %s: %v", r.chatID, r.turnID, err)
	r.transition(StateFailed)
	r.svc.unlock(r.ctx, r.chatID, r.turnID)
	r.svc.release(r.ctx, r.chatID, r.turnID)
	r.emit(Event{Type: EventError, Error: userFacingError(err)})
}

// transition moves the turn forward. A terminal state is never left.
func (r *turnRun) transition(next TurnState) {
	if r.state == next || r.state.Terminal() {
		return
	}
	log.Printf("chat %s turn %s: %s -> %s", r.chatID, r.turnID, r.state, next)
	r.state = next
	r.emit(Event{Type: EventStatus, State: next})
}

// emit never outlives the caller: it gives up once ctx is done.
func (r *turnRun) emit(ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *turnRun) buildPrompt() []*schema.Message {
	history := r.conv.Messages
	if limit := r.svc.opts.MaxHistoryMessages; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	msgs := make([]*schema.Message, 0, len(history)+1)
	msgs = append(msgs, schema.SystemMessage(r.svc.opts.SystemPrompt))
	var prev model.Role
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			if prev == model.RoleUser && r.caps.NeedsDummyAssistantMessage {
				msgs = append(msgs, schema.AssistantMessage(dummyAssistant, nil))
			}
			msgs = append(msgs, schema.UserMessage(m.Content))
		case model.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		case model.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		}
		prev = m.Role
	}
	return msgs
}

func userFacingError(err error) string {
	if pe, ok := ai.AsProviderError(err); ok && pe.Timeout {
		return timeoutMessage
	}
	return turnErrorMessage
}
