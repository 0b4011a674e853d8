package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/vaultsync/vaultsync/internal/model"
)

// fullSyncCursor is the cursor value requesting the entire remote state.
const fullSyncCursor = "*"

// Client talks to the task service's sync endpoint over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a client for the service at baseURL authenticating with
// the given token. If logger is nil, a default logger writing to stderr is
// used.
func NewClient(baseURL, token string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

type syncRequest struct {
	SyncToken     string        `json:"sync_token,omitempty"`
	ResourceTypes []string      `json:"resource_types,omitempty"`
	Commands      []wireCommand `json:"commands,omitempty"`
}

type syncResponse struct {
	SyncToken     string                     `json:"sync_token"`
	FullSync      bool                       `json:"full_sync"`
	Projects      []wireProject              `json:"projects"`
	Sections      []wireSection              `json:"sections"`
	Items         []wireItem                 `json:"items"`
	SyncStatus    map[string]json.RawMessage `json:"sync_status"`
	TempIDMapping map[string]string          `json:"temp_id_mapping"`
}

type wireProject struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsArchived bool   `json:"is_archived"`
	IsDeleted  bool   `json:"is_deleted"`
}

type wireSection struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProjectID  string `json:"project_id"`
	IsArchived bool   `json:"is_archived"`
	IsDeleted  bool   `json:"is_deleted"`
}

type wireDue struct {
	Date        string `json:"date"`
	String      string `json:"string"`
	IsRecurring bool   `json:"is_recurring"`
}

type wireItem struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	ProjectID   string   `json:"project_id"`
	SectionID   string   `json:"section_id"`
	ParentID    string   `json:"parent_id"`
	Priority    int      `json:"priority"`
	Due         *wireDue `json:"due"`
	Labels      []string `json:"labels"`
	Checked     bool     `json:"checked"`
	CompletedAt string   `json:"completed_at"`
	IsDeleted   bool     `json:"is_deleted"`
	AddedAt     string   `json:"added_at"`
	URL         string   `json:"url"`
}

type wireCommand struct {
	Type   string         `json:"type"`
	UUID   string         `json:"uuid"`
	TempID string         `json:"temp_id,omitempty"`
	Args   map[string]any `json:"args"`
}

// Fetch implements Service.
func (c *Client) Fetch(ctx context.Context, cursor string, full bool) (*FetchResult, error) {
	token := cursor
	if full || token == "" {
		token = fullSyncCursor
	}
	req := syncRequest{
		SyncToken:     token,
		ResourceTypes: []string{"projects", "sections", "items"},
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, &TransportError{Op: "fetch", Err: err}
	}

	out := &FetchResult{
		FullSync:   resp.FullSync,
		NextCursor: resp.SyncToken,
	}
	for _, p := range resp.Projects {
		out.Projects = append(out.Projects, model.Project{
			ID:       p.ID,
			Name:     p.Name,
			Archived: p.IsArchived,
			Deleted:  p.IsDeleted,
		})
	}
	for _, s := range resp.Sections {
		out.Sections = append(out.Sections, model.Section{
			ID:        s.ID,
			Name:      s.Name,
			ProjectID: s.ProjectID,
			Archived:  s.IsArchived,
			Deleted:   s.IsDeleted,
		})
	}
	for _, it := range resp.Items {
		out.Tasks = append(out.Tasks, itemToTask(it))
	}
	c.logger.Printf("Fetched %d projects, %d sections, %d tasks (full=%v)",
		len(out.Projects), len(out.Sections), len(out.Tasks), out.FullSync)
	return out, nil
}

// Dispatch implements Service.
func (c *Client) Dispatch(ctx context.Context, commands []Command) (*DispatchResult, error) {
	req := syncRequest{}
	for _, cmd := range commands {
		req.Commands = append(req.Commands, wireCommand{
			Type:   cmd.Type,
			UUID:   cmd.UUID,
			TempID: cmd.TempID,
			Args:   cmd.Args,
		})
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, &TransportError{Op: "dispatch", Err: err}
	}

	out := &DispatchResult{
		Status:        make(map[string]CommandStatus, len(resp.SyncStatus)),
		TempIDMapping: resp.TempIDMapping,
		NextCursor:    resp.SyncToken,
	}
	for uuid, raw := range resp.SyncStatus {
		out.Status[uuid] = decodeStatus(raw)
	}
	return out, nil
}

// decodeStatus parses one sync_status value: the string "ok" for acceptance
// or an object carrying error_code and error for a rejection.
func decodeStatus(raw json.RawMessage) CommandStatus {
	var ok string
	if err := json.Unmarshal(raw, &ok); err == nil && ok == "ok" {
		return CommandStatus{OK: true}
	}
	var rej struct {
		ErrorCode int    `json:"error_code"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(raw, &rej); err != nil {
		return CommandStatus{ErrorCode: -1, ErrorMessage: "unparseable command status"}
	}
	return CommandStatus{ErrorCode: rej.ErrorCode, ErrorMessage: rej.Error}
}

func (c *Client) post(ctx context.Context, body syncRequest) (*syncResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sync", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, snippet)
	}

	var out syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func itemToTask(it wireItem) model.Task {
	t := model.Task{
		ID:          it.ID,
		Content:     it.Content,
		Description: it.Description,
		ProjectID:   it.ProjectID,
		SectionID:   it.SectionID,
		ParentID:    it.ParentID,
		Priority:    it.Priority,
		Labels:      it.Labels,
		Completed:   it.Checked,
		Deleted:     it.IsDeleted,
		URL:         it.URL,
	}
	if it.Due != nil {
		t.Due = &model.Due{Date: it.Due.Date, String: it.Due.String, Recurring: it.Due.IsRecurring}
	}
	if it.CompletedAt != "" {
		if at, err := time.Parse(time.RFC3339, it.CompletedAt); err == nil {
			t.CompletedAt = at
		}
	}
	if it.AddedAt != "" {
		if at, err := time.Parse(time.RFC3339, it.AddedAt); err == nil {
			t.CreatedAt = at
		}
	}
	return t
}
