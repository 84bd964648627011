package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/moving-chat/internal/api/dto"
	"github.com/spec-kit/moving-chat/internal/auth"
	"github.com/spec-kit/moving-chat/internal/chat"
	"github.com/spec-kit/moving-chat/internal/config"
	"github.com/spec-kit/moving-chat/internal/domain"
	"github.com/spec-kit/moving-chat/internal/service"
	apperrors "github.com/spec-kit/moving-chat/pkg/util/errorutil"
)

// ChatHandler exposes a user's chat session to the view.
type ChatHandler struct {
	service *service.ChatService
	limits  config.ChatConfig
}

// NewChatHandler constructs handler.
func NewChatHandler(chatService *service.ChatService, limits config.ChatConfig) *ChatHandler {
	return &ChatHandler{service: chatService, limits: limits}
}

// OpenSession POST /chats/:id/session.
func (h *ChatHandler) OpenSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	state, err := h.service.OpenSession(c.UserContext(), principal.SessionContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": chatState(state, principal.UserID)})
}

// CloseSession DELETE /chats/session.
func (h *ChatHandler) CloseSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	h.service.CloseSession(principal.UserID)
	return c.SendStatus(http.StatusNoContent)
}

// GetState GET /chats/:id/state.
func (h *ChatHandler) GetState(c *fiber.Ctx) error {
	return h.withSession(c, func(*chat.Session) error { return nil })
}

// Scroll POST /chats/:id/scroll.
func (h *ChatHandler) Scroll(c *fiber.Ctx) error {
	var req dto.ScrollRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	_, session, err := h.session(c)
	if err != nil {
		return err
	}
	auto, err := session.HandleScroll(domain.ScrollMetrics{
		ScrollHeight: req.ScrollHeight,
		ScrollTop:    req.ScrollTop,
		ClientHeight: req.ClientHeight,
	})
	if err != nil {
		return service.MapSessionError(err, c.Params("id"))
	}
	return c.JSON(fiber.Map{"data": dto.ScrollResponse{AutoScroll: auto, ShowJumpToBottom: !auto}})
}

// JumpToBottom POST /chats/:id/jump-to-bottom.
func (h *ChatHandler) JumpToBottom(c *fiber.Ctx) error {
	return h.withSession(c, func(s *chat.Session) error {
		_, err := s.JumpToBottom()
		return err
	})
}

// SetDraft PUT /chats/:id/draft.
func (h *ChatHandler) SetDraft(c *fiber.Ctx) error {
	var req dto.DraftTextRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return h.withSession(c, func(s *chat.Session) error {
		return s.SetDraftText(req.Text)
	})
}

// CancelDraft DELETE /chats/:id/draft.
func (h *ChatHandler) CancelDraft(c *fiber.Ctx) error {
	return h.withSession(c, func(s *chat.Session) error { return s.CancelDraft() })
}

// AddFiles POST /chats/:id/draft/files (multipart, field "files").
func (h *ChatHandler) AddFiles(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return apperrors.NewValidationError("multipart form required", nil)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return apperrors.NewValidationError("files required", nil)
	}
	return h.withSession(c, func(s *chat.Session) error {
		state, err := s.State()
		if err != nil {
			return err
		}
		if h.limits.MaxAttachments > 0 && len(state.DraftFiles)+len(headers) > h.limits.MaxAttachments {
			return apperrors.NewAttachmentRejected("too many attachments", map[string]any{"max": h.limits.MaxAttachments})
		}
		files := make([]domain.LocalFile, 0, len(headers))
		for _, fh := range headers {
			contentType := fh.Header.Get("Content-Type")
			if err := h.validateFile(fh.Filename, contentType, fh.Size); err != nil {
				return err
			}
			f, err := fh.Open()
			if err != nil {
				return apperrors.NewValidationError("unreadable file", map[string]any{"file_name": fh.Filename})
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return apperrors.NewValidationError("unreadable file", map[string]any{"file_name": fh.Filename})
			}
			files = append(files, domain.LocalFile{
				Name:        fh.Filename,
				SizeBytes:   fh.Size,
				ContentType: contentType,
				Data:        data,
			})
		}
		_, err = s.AddFiles(files...)
		return err
	})
}

// RemoveFile DELETE /chats/:id/draft/files/:fileID.
func (h *ChatHandler) RemoveFile(c *fiber.Ctx) error {
	fileID := c.Params("fileID")
	return h.withSession(c, func(s *chat.Session) error { return s.RemoveFile(fileID) })
}

// ClearFiles DELETE /chats/:id/draft/files.
func (h *ChatHandler) ClearFiles(c *fiber.Ctx) error {
	return h.withSession(c, func(s *chat.Session) error { return s.ClearFiles() })
}

// DismissError DELETE /chats/:id/error.
func (h *ChatHandler) DismissError(c *fiber.Ctx) error {
	return h.withSession(c, func(s *chat.Session) error { return s.DismissError() })
}

// Key POST /chats/:id/keys.
func (h *ChatHandler) Key(c *fiber.Ctx) error {
	var req dto.KeyRequest
	if err := c.BodyParser(&req); err != nil || req.Key == "" {
		return apperrors.NewValidationError("key required", nil)
	}
	principal, session, err := h.session(c)
	if err != nil {
		return err
	}
	sent, msg, err := session.HandleKey(c.UserContext(), domain.KeyEvent{
		Key:   req.Key,
		Shift: req.Shift,
		Ctrl:  req.Ctrl,
		Alt:   req.Alt,
		Meta:  req.Meta,
	})
	if err != nil {
		return service.MapSessionError(err, c.Params("id"))
	}
	state, err := session.State()
	if err != nil {
		return service.MapSessionError(err, c.Params("id"))
	}
	resp := dto.KeyResponse{Sent: sent, State: chatState(state, principal.UserID)}
	if sent {
		m := messageResponse(msg, principal.UserID)
		resp.Message = &m
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Send POST /chats/:id/send.
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	conversationID := c.Params("id")
	msg, err := h.service.Send(c.UserContext(), principal.UserID, conversationID)
	if err != nil {
		return err
	}
	resp := dto.SendResponse{Message: messageResponse(msg, principal.UserID)}
	// The message is stored by now; a switch racing the send only costs the state.
	if session, err := h.service.Session(principal.UserID, conversationID); err == nil {
		if state, err := session.State(); err == nil {
			st := chatState(state, principal.UserID)
			resp.State = &st
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
}

// ReadCursor GET /chats/:id/read-cursor.
func (h *ChatHandler) ReadCursor(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	conversationID := c.Params("id")
	cursor, err := h.service.ReadCursor(c.UserContext(), principal.UserID, conversationID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	resp := dto.ReadCursorResponse{ConversationID: conversationID}
	if cursor != nil {
		resp.LastMessageID = cursor.LastMessageID
		resp.LastCreatedAt = &cursor.LastCreatedAt
		resp.UpdatedAt = &cursor.UpdatedAt
	}
	return c.JSON(fiber.Map{"data": resp})
}

func (h *ChatHandler) session(c *fiber.Ctx) (*auth.Principal, *chat.Session, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, nil, apperrors.NewUnauthorized("user required")
	}
	session, err := h.service.Session(principal.UserID, c.Params("id"))
	if err != nil {
		return nil, nil, err
	}
	return principal, session, nil
}

// withSession runs op against the caller's session and responds with the new state.
func (h *ChatHandler) withSession(c *fiber.Ctx, op func(*chat.Session) error) error {
	principal, session, err := h.session(c)
	if err != nil {
		return err
	}
	if err := op(session); err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return err
		}
		return service.MapSessionError(err, c.Params("id"))
	}
	state, err := session.State()
	if err != nil {
		return service.MapSessionError(err, c.Params("id"))
	}
	return c.JSON(fiber.Map{"data": chatState(state, principal.UserID)})
}

func (h *ChatHandler) validateFile(name, contentType string, size int64) error {
	details := map[string]any{"file_name": name}
	if h.limits.MaxAttachmentBytes > 0 && size > h.limits.MaxAttachmentBytes {
		details["max_bytes"] = h.limits.MaxAttachmentBytes
		return apperrors.NewAttachmentRejected("file too large", details)
	}
	if len(h.limits.AllowedMimePrefixes) == 0 {
		return nil
	}
	lowered := strings.ToLower(contentType)
	for _, prefix := range h.limits.AllowedMimePrefixes {
		if strings.HasPrefix(lowered, strings.ToLower(prefix)) {
			return nil
		}
	}
	details["content_type"] = contentType
	return apperrors.NewAttachmentRejected("file type not allowed", details)
}

func chatState(state chat.State, userID string) dto.ChatStateResponse {
	resp := dto.ChatStateResponse{
		Conversation: dto.ConversationResponse{
			ID:               state.Conversation.ID,
			CounterpartID:    state.Conversation.CounterpartID,
			CounterpartName:  state.Conversation.CounterpartName,
			CounterpartImage: state.Conversation.CounterpartImage,
			OrderRef:         state.Conversation.OrderRef,
			Status:           state.Conversation.Status,
		},
		Messages:         make([]dto.MessageResponse, 0, len(state.Messages)),
		Loading:          state.Loading,
		AutoScroll:       state.AutoScroll,
		ShowJumpToBottom: state.ShowJumpToBottom,
		Draft: dto.DraftResponse{
			Text:  state.DraftText,
			Files: make([]dto.DraftFileResponse, 0, len(state.DraftFiles)),
		},
		CanSend: state.CanSend,
		Sending: state.Sending,
	}
	for _, msg := range state.Messages {
		resp.Messages = append(resp.Messages, messageResponse(msg, userID))
	}
	for _, f := range state.DraftFiles {
		resp.Draft.Files = append(resp.Draft.Files, dto.DraftFileResponse{
			ID:          f.ID,
			FileName:    f.Name,
			ContentType: f.ContentType,
			Category:    f.Category,
			SizeBytes:   f.SizeBytes,
		})
	}
	if state.Scroll != nil {
		resp.Scroll = &dto.ScrollCommandResponse{Seq: state.Scroll.Seq, Behavior: state.Scroll.Behavior}
	}
	if state.LastError != nil {
		resp.LastError = &dto.NoticeResponse{
			Code:    string(state.LastError.Kind),
			Message: state.LastError.Message,
			At:      state.LastError.At,
		}
	}
	return resp
}

func messageResponse(msg domain.Message, userID string) dto.MessageResponse {
	attachments := make([]dto.AttachmentResponse, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, dto.AttachmentResponse{
			ID:        att.ID,
			FileName:  att.Name,
			MimeType:  att.MimeType,
			Category:  att.Category,
			SizeBytes: att.SizeBytes,
			URL:       att.URL,
		})
	}
	return dto.MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Mine:           msg.SenderID == userID,
		Kind:           msg.Kind(),
		Body:           msg.Body,
		Attachments:    attachments,
		CreatedAt:      msg.CreatedAt,
	}
}
