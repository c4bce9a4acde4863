package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RoomProvisioner is the video-room collaborator: given a confirmed call or
// group session, it returns the room URL the core stores verbatim.
type RoomProvisioner interface {
	ProvisionRoom(ctx context.Context, subjectType string, subjectID int64) (string, error)
}

// HTTPRoomProvisioner creates rooms against a provider API (Daily-style:
// POST /rooms with a bearer key, JSON response carrying the room URL).
type HTTPRoomProvisioner struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPRoomProvisioner(baseURL, apiKey string) *HTTPRoomProvisioner {
	return &HTTPRoomProvisioner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
}

func (p *HTTPRoomProvisioner) ProvisionRoom(ctx context.Context, subjectType string, subjectID int64) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"name": fmt.Sprintf("%s-%d-%s", subjectType, subjectID, uuid.NewString()[:8]),
	})
	if err != nil {
		return "", fmt.Errorf("encode room request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/rooms", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build room request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provision room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("provision room: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode room response: %w", err)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("provision room: provider returned no url")
	}
	return parsed.URL, nil
}

// StaticRoomProvisioner generates deterministic-looking room URLs without an
// external provider; used for local runs and as the fallback when the
// provider call fails.
type StaticRoomProvisioner struct {
	baseURL string
}

func NewStaticRoomProvisioner(baseURL string) *StaticRoomProvisioner {
	if baseURL == "" {
		baseURL = "https://meet.mentorapp.local"
	}
	return &StaticRoomProvisioner{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *StaticRoomProvisioner) ProvisionRoom(_ context.Context, subjectType string, subjectID int64) (string, error) {
	return fmt.Sprintf("%s/%s-%d-%s", p.baseURL, subjectType, subjectID, uuid.NewString()[:8]), nil
}

func fallbackRoomURL(subjectType string, subjectID int64) string {
	return fmt.Sprintf("https://meet.mentorapp.local/%s-%d-%s", subjectType, subjectID, uuid.NewString()[:8])
}
