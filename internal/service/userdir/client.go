package userdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/version"
)

const (
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 512
)

// HTTPClient — REST-клиент внешнего справочника пользователей.
// Устойчивость (таймаут, circuit breaker) обеспечивает Resolver.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *log.Entry
}

type userResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Active *bool  `json:"active"`
}

// NewHTTPClient создаёт клиент справочника по базовому URL, например http://users:8080.
func NewHTTPClient(baseURL string, httpClient *http.Client, logger *log.Entry) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = log.New().WithField("component", "user-directory-client")
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  version.Current().UserAgent(),
		logger:     logger,
	}
}

// GetUserByID запрашивает GET /api/users/{id}.
func (c *HTTPClient) GetUserByID(ctx context.Context, id int64) (domain.Identity, error) {
	return c.get(ctx, "/api/users/"+strconv.FormatInt(id, 10))
}

// GetUserByEmail запрашивает GET /api/users/email/{email}.
func (c *HTTPClient) GetUserByEmail(ctx context.Context, email string) (domain.Identity, error) {
	identity, err := c.get(ctx, "/api/users/email/"+url.PathEscape(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		// Для поиска по email "не найден" выражается записью без id.
		return domain.Identity{}, nil
	}
	return identity, err
}

func (c *HTTPClient) get(ctx context.Context, path string) (domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("build user directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID(ctx))
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("call user directory: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Identity{}, domain.ErrUserNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.WithFields(log.Fields{
			"path":   path,
			"status": resp.StatusCode,
		}).Debug("User directory returned non-success status")
		return domain.Identity{}, fmt.Errorf("user directory status %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(body)), domain.ErrUserDirectoryUnavailable)
	}

	var payload userResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Identity{}, fmt.Errorf("decode user directory response: %w", err)
	}

	identity := domain.Identity{ID: payload.ID, Name: payload.Name, Active: true}
	if payload.Active != nil {
		identity.Active = *payload.Active
	}
	return identity, nil
}

// requestID пробрасывает идентификатор входящего HTTP-запроса или генерирует новый.
func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

var _ domain.UserDirectory = (*HTTPClient)(nil)
