package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"zapflow_backend/platform/phone"
)

// evolutionClient talks to an Evolution API instance. Authentication is the
// instance apikey header; the instance name is part of the path.
type evolutionClient struct {
	baseURL  string
	apiKey   string
	instance string
	http     *http.Client
}

func newEvolutionClient(conn Connection) *evolutionClient {
	return &evolutionClient{
		baseURL:  strings.TrimRight(conn.APIURL, "/"),
		apiKey:   conn.APIKey,
		instance: conn.InstanceName,
		http:     newHTTPClient(),
	}
}

type evolutionTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type evolutionMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
}

type evolutionResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Message  string `json:"message"`
	Error    string `json:"error"`
	Response struct {
		Message string `json:"message"`
	} `json:"response"`
}

func (c *evolutionClient) SendMessage(ctx context.Context, destination, content, messageType, mediaURL string) (SendResult, error) {
	var (
		path    string
		payload any
	)

	jid := phone.WhatsAppJID(destination)
	if messageType == "" || messageType == "text" {
		path = fmt.Sprintf("%s/message/sendText/%s", c.baseURL, c.instance)
		payload = evolutionTextRequest{Number: jid, Text: content}
	} else {
		path = fmt.Sprintf("%s/message/sendMedia/%s", c.baseURL, c.instance)
		payload = evolutionMediaRequest{
			Number:    jid,
			MediaType: messageType,
			Media:     mediaURL,
			Caption:   content,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal evolution payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewBuffer(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("evolution request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(resp.Body)

	var parsed evolutionResponse
	_ = json.Unmarshal(data, &parsed)

	if resp.StatusCode >= http.StatusBadRequest {
		reason := firstNonEmpty(parsed.Response.Message, parsed.Message, parsed.Error, strings.TrimSpace(string(data)))
		return SendResult{Success: false, Error: reason}, nil
	}

	return SendResult{Success: true, MessageID: parsed.Key.ID}, nil
}

type evolutionConnectResponse struct {
	Code        string `json:"code"`
	PairingCode string `json:"pairingCode"`
}

func (c *evolutionClient) PairingCode(ctx context.Context) (string, error) {
	path := fmt.Sprintf("%s/instance/connect/%s", c.baseURL, c.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("evolution connect failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("evolution connect returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed evolutionConnectResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode connect response: %w", err)
	}

	return firstNonEmpty(parsed.Code, parsed.PairingCode), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
