// Package whatsapp provides the gateway abstraction the dispatchers send
// through. Two backends are supported, selected by the connection's provider
// discriminant; callers never branch on backend identity.
package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider discriminants stored on the connection record.
const (
	ProviderEvolution = "evolution"
	ProviderWAPI      = "wapi"
)

// Connection carries the credential fields a gateway backend needs. Which
// fields are required depends on Provider.
type Connection struct {
	Provider     string
	APIURL       string
	APIKey       string
	InstanceName string
	InstanceID   string
	WAPIToken    string
}

// SendResult is the uniform outcome of one gateway send. Expected failures
// (invalid number, disconnected instance) come back with Success=false and a
// raw Error string; they are not Go errors.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Sender sends exactly one outbound message per call. No retries happen at
// this layer; retry policy belongs to the dispatchers.
type Sender interface {
	SendMessage(ctx context.Context, destination, content, messageType, mediaURL string) (SendResult, error)
	PairingCode(ctx context.Context) (string, error)
}

// SenderFactory builds a Sender for a connection record. Dispatchers hold a
// factory so tests can substitute fakes.
type SenderFactory func(conn Connection) (Sender, error)

// NewSender selects the concrete backend for the connection.
func NewSender(conn Connection) (Sender, error) {
	switch conn.Provider {
	case ProviderEvolution:
		if conn.APIURL == "" || conn.APIKey == "" || conn.InstanceName == "" {
			return nil, fmt.Errorf("evolution connection missing api_url, api_key or instance_name")
		}
		return newEvolutionClient(conn), nil
	case ProviderWAPI:
		if conn.APIURL == "" || conn.InstanceID == "" || conn.WAPIToken == "" {
			return nil, fmt.Errorf("wapi connection missing api_url, instance_id or wapi_token")
		}
		return newWAPIClient(conn), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", conn.Provider)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
