package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"antrian-klinik/internal/models"
	"antrian-klinik/internal/queue"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrNetwork: the request may or may not have reached the server.
	ErrNetwork = errors.New("network error")
	// ErrServer: the server failed without applying anything it could report.
	ErrServer = errors.New("server error")
)

// API is the REST operations surface as seen by a writer.
type API interface {
	Snapshot(ctx context.Context, key models.QueueKey) (models.Snapshot, error)
	Enqueue(ctx context.Context, key models.QueueKey, draft models.EntryDraft) (models.EntryResult, error)
	CallNext(ctx context.Context, key models.QueueKey) (models.EntryResult, error)
	Move(ctx context.Context, key models.QueueKey, entryID string, req models.MoveRequest) (models.Snapshot, error)
	BulkReorder(ctx context.Context, key models.QueueKey, req models.ReorderRequest) (models.Snapshot, error)
	ToggleIntake(ctx context.Context, key models.QueueKey, open bool) (models.Snapshot, error)
	MarkStatus(ctx context.Context, key models.QueueKey, entryID string, status models.Status) (models.Snapshot, error)
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// RESTClient talks to the fiber operations API. Mutations are never retried
// here: an unknown outcome is the reconciler's call.
type RESTClient struct {
	http *resty.Client
	log  *zap.Logger
}

func NewRESTClient(baseURL, token string, timeout time.Duration, log *zap.Logger) *RESTClient {
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &RESTClient{http: client, log: log.Named("api")}
}

const queuePath = "/api/queues/{specialistId}/{day}/{department}"

func (c *RESTClient) do(ctx context.Context, method, path string, key models.QueueKey, pathParams map[string]string, body, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"specialistId": key.SpecialistID,
			"day":          key.Day,
			"department":   key.Department,
		}).
		SetPathParams(pathParams).
		SetResult(&envelope{}).
		SetError(&envelope{})
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Debug("request gagal", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.IsError() {
		env, _ := resp.Error().(*envelope)
		return decodeError(resp.StatusCode(), env)
	}

	env, _ := resp.Result().(*envelope)
	if env == nil || len(env.Data) == 0 {
		return fmt.Errorf("%w: respons kosong", ErrServer)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrServer, err)
	}
	return nil
}

func decodeError(status int, env *envelope) error {
	msg := http.StatusText(status)
	code := ""
	if env != nil {
		code = env.Code
		if env.Error != "" {
			msg = env.Error
		}
	}
	if sentinel := queue.ErrorForCode(code); sentinel != nil {
		return fmt.Errorf("%w (%s)", sentinel, msg)
	}

	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w (%s)", queue.ErrValidation, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w (%s)", queue.ErrConflict, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w (%s)", queue.ErrNotFound, msg)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w (%s)", queue.ErrInvalidTransition, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w (%s)", queue.ErrForbidden, msg)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		// proxy gave up; the backend may still have applied it
		return fmt.Errorf("%w: %s", ErrNetwork, msg)
	}
	return fmt.Errorf("%w: %s", ErrServer, msg)
}

func (c *RESTClient) Snapshot(ctx context.Context, key models.QueueKey) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.do(ctx, http.MethodGet, queuePath, key, nil, nil, &snap)
	return snap, err
}

func (c *RESTClient) Enqueue(ctx context.Context, key models.QueueKey, draft models.EntryDraft) (models.EntryResult, error) {
	var res models.EntryResult
	err := c.do(ctx, http.MethodPost, queuePath+"/entries", key, nil, draft, &res)
	return res, err
}

func (c *RESTClient) CallNext(ctx context.Context, key models.QueueKey) (models.EntryResult, error) {
	var res models.EntryResult
	err := c.do(ctx, http.MethodPost, queuePath+"/call-next", key, nil, nil, &res)
	return res, err
}

func (c *RESTClient) Move(ctx context.Context, key models.QueueKey, entryID string, req models.MoveRequest) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.do(ctx, http.MethodPost, queuePath+"/entries/{entryId}/move", key,
		map[string]string{"entryId": entryID}, req, &snap)
	return snap, err
}

func (c *RESTClient) BulkReorder(ctx context.Context, key models.QueueKey, req models.ReorderRequest) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.do(ctx, http.MethodPost, queuePath+"/reorder", key, nil, req, &snap)
	return snap, err
}

func (c *RESTClient) ToggleIntake(ctx context.Context, key models.QueueKey, open bool) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.do(ctx, http.MethodPost, queuePath+"/intake", key, nil, models.IntakeRequest{Open: open}, &snap)
	return snap, err
}

func (c *RESTClient) MarkStatus(ctx context.Context, key models.QueueKey, entryID string, status models.Status) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.do(ctx, http.MethodPost, queuePath+"/entries/{entryId}/status", key,
		map[string]string{"entryId": entryID}, models.StatusRequest{Status: status}, &snap)
	return snap, err
}
