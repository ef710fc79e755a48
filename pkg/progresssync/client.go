package progresssync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ErrOffline 网络层失败（连接不上 / 超时），可入队稍后重试
var ErrOffline = errors.New("progress api unreachable")

// ServerError 服务端明确拒绝（非 2xx），不自动重试
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("progress api rejected request: %d %s", e.StatusCode, e.Message)
}

// LessonUpdateRequest PUT /api/progress/lesson/:lessonId 请求体。
// progress 为 0-1，completionPercentage 为 0-100，两者同时给出时 progress 优先。
type LessonUpdateRequest struct {
	Progress             *float64               `json:"progress,omitempty"`
	Completed            *bool                  `json:"completed,omitempty"`
	CompletionPercentage *float64               `json:"completionPercentage,omitempty"`
	PositionSeconds      *float64               `json:"positionSeconds,omitempty"`
	CompletedPages       *int                   `json:"completedPages,omitempty"`
	Attempts             *int                   `json:"attempts,omitempty"`
	Score                *float64               `json:"score,omitempty"`
	TimeSpentDelta       float64                `json:"timeSpentDelta,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	LastAccessed         time.Time              `json:"lastAccessed"`
}

// LessonRecord 服务端返回的课程进度记录
type LessonRecord struct {
	LessonID        uint                   `json:"lessonId"`
	ModuleID        uint                   `json:"moduleId"`
	PositionSeconds float64                `json:"positionSeconds"`
	Progress        float64                `json:"progress"`
	Completed       bool                   `json:"completed"`
	CompletedPages  int                    `json:"completedPages"`
	Attempts        int                    `json:"attempts"`
	Score           float64                `json:"score"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	AllowEmpty      bool                   `json:"allowEmpty"`
	TotalPages      int                    `json:"totalPages"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// ModuleProgressResponse GET /api/progress/modules/:moduleId 响应体
type ModuleProgressResponse struct {
	Summary ModuleProgress `json:"summary"`
	Lessons []LessonRecord `json:"lessons"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client 进度 API 客户端
type Client struct {
	baseURL string
	token   string
	session string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		session: uuid.New().String(),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Session 本次逻辑会话的标识，随每个请求带出
func (c *Client) Session() string {
	return c.session
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Session", c.session)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// 连接失败、DNS、超时等网络层错误归类为离线
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("%w: %v", ErrOffline, uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}

	var env envelope
	if jerr := json.Unmarshal(raw, &env); jerr != nil && resp.StatusCode < 300 {
		return jerr
	}

	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ServerError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// FetchModuleProgress 拉取模块进度与课程记录
func (c *Client) FetchModuleProgress(ctx context.Context, moduleID uint) (*ModuleProgressResponse, error) {
	var out ModuleProgressResponse
	path := fmt.Sprintf("/api/progress/modules/%d", moduleID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutLessonProgress 写入一节课的进度
func (c *Client) PutLessonProgress(ctx context.Context, lessonID uint, req LessonUpdateRequest) (*LessonRecord, error) {
	var out LessonRecord
	path := fmt.Sprintf("/api/progress/lesson/%d", lessonID)
	if err := c.do(ctx, http.MethodPut, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
