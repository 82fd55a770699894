package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"zapflow_backend/platform/phone"
)

// wapiClient talks to a W-API gateway. Authentication is a bearer token; the
// instance is selected through the instanceId query parameter.
type wapiClient struct {
	baseURL    string
	token      string
	instanceID string
	http       *http.Client
}

func newWAPIClient(conn Connection) *wapiClient {
	return &wapiClient{
		baseURL:    strings.TrimRight(conn.APIURL, "/"),
		token:      conn.WAPIToken,
		instanceID: conn.InstanceID,
		http:       newHTTPClient(),
	}
}

type wapiTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type wapiMediaRequest struct {
	Phone   string `json:"phone"`
	Media   string `json:"media"`
	Caption string `json:"caption,omitempty"`
}

type wapiResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

func (c *wapiClient) SendMessage(ctx context.Context, destination, content, messageType, mediaURL string) (SendResult, error) {
	var (
		endpoint string
		payload  any
	)

	jid := phone.WhatsAppJID(destination)
	switch messageType {
	case "", "text":
		endpoint = "/v1/message/send-text"
		payload = wapiTextRequest{Phone: jid, Message: content}
	case "image":
		endpoint = "/v1/message/send-image"
		payload = wapiMediaRequest{Phone: jid, Media: mediaURL, Caption: content}
	case "video":
		endpoint = "/v1/message/send-video"
		payload = wapiMediaRequest{Phone: jid, Media: mediaURL, Caption: content}
	case "audio":
		endpoint = "/v1/message/send-audio"
		payload = wapiMediaRequest{Phone: jid, Media: mediaURL}
	default:
		endpoint = "/v1/message/send-document"
		payload = wapiMediaRequest{Phone: jid, Media: mediaURL, Caption: content}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal wapi payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(endpoint), bytes.NewBuffer(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("wapi request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(resp.Body)

	var parsed wapiResponse
	_ = json.Unmarshal(data, &parsed)

	if resp.StatusCode >= http.StatusBadRequest {
		reason := firstNonEmpty(parsed.Error, parsed.Message, strings.TrimSpace(string(data)))
		return SendResult{Success: false, Error: reason}, nil
	}

	return SendResult{Success: true, MessageID: parsed.MessageID}, nil
}

type wapiQRResponse struct {
	QRCode string `json:"qrcode"`
}

func (c *wapiClient) PairingCode(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL("/v1/instance/qr-code"), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("wapi qr-code failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("wapi qr-code returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed wapiQRResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode qr-code response: %w", err)
	}

	return parsed.QRCode, nil
}

func (c *wapiClient) endpointURL(path string) string {
	return c.baseURL + path + "?instanceId=" + url.QueryEscape(c.instanceID)
}
