package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/moving-chat/internal/config"
	"github.com/spec-kit/moving-chat/internal/domain"
)

const maxErrorBody = 512

// HTTPClient talks to the marketplace REST backend.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds a client with a pooled transport.
func NewHTTPClient(cfg config.BackendConfig, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout()
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout, Transport: transport},
		logger:  logger,
	}
}

// As binds the client to an authenticated session.
func (c *HTTPClient) As(sc domain.SessionContext) Client {
	return &sessionClient{parent: c, token: sc.Token}
}

type sessionClient struct {
	parent *HTTPClient
	token  string
}

func (s *sessionClient) FetchMessages(ctx context.Context, conversationID string, page int) (MessagePage, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{"page": []string{strconv.Itoa(page)}}
	endpoint := s.parent.endpoint("chats", conversationID, "messages") + "?" + query.Encode()

	var payload wirePage
	if err := s.doJSON(ctx, http.MethodGet, endpoint, nil, "", &payload); err != nil {
		return MessagePage{}, fmt.Errorf("fetch messages page %d: %w", page, err)
	}

	result := MessagePage{
		Total:    payload.Count,
		HasNext:  payload.Next != nil && *payload.Next != "",
		Messages: make([]domain.Message, 0, len(payload.Results)),
	}
	for _, msg := range payload.Results {
		result.Messages = append(result.Messages, msg.toDomain(conversationID))
	}
	return result, nil
}

func (s *sessionClient) SendMessage(ctx context.Context, req SendRequest) (domain.Message, error) {
	body, contentType, err := encodeSendRequest(req)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message: %w", err)
	}
	endpoint := s.parent.endpoint("chats", req.ConversationID, "messages")

	var payload wireMessage
	if err := s.doJSON(ctx, http.MethodPost, endpoint, body, contentType, &payload); err != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}
	return payload.toDomain(req.ConversationID), nil
}

func (s *sessionClient) FetchConversation(ctx context.Context, conversationID string) (domain.Conversation, error) {
	var payload wireConversation
	if err := s.doJSON(ctx, http.MethodGet, s.parent.endpoint("chats", conversationID), nil, "", &payload); err != nil {
		return domain.Conversation{}, fmt.Errorf("fetch conversation: %w", err)
	}
	conv := payload.toDomain()
	if conv.ID == "" {
		conv.ID = conversationID
	}
	return conv, nil
}

func (s *sessionClient) doJSON(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	started := time.Now()
	resp, err := s.parent.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	s.parent.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// endpoint joins path segments under the base URL with a trailing slash.
func (c *HTTPClient) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, seg := range segments {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return c.baseURL + "/" + strings.Join(escaped, "/") + "/"
}

func encodeSendRequest(req SendRequest) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	if err := writer.WriteField("text", req.Text); err != nil {
		return nil, "", err
	}
	if !req.ClientCreatedAt.IsZero() {
		if err := writer.WriteField("client_created_at", req.ClientCreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, "", err
		}
	}
	if req.ClientNonce != "" {
		if err := writer.WriteField("client_nonce", req.ClientNonce); err != nil {
			return nil, "", err
		}
	}
	for _, file := range req.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, file.Name))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}
