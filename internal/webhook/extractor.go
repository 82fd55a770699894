package webhook

import "strings"

// evolutionPayload is the messages.upsert shape posted by Evolution API.
type evolutionPayload struct {
	Event string `json:"event"`
	Data  struct {
		Key struct {
			RemoteJID string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
		} `json:"key"`
		PushName string `json:"pushName"`
		Message  struct {
			Conversation    string `json:"conversation"`
			ExtendedMessage struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
		} `json:"message"`
	} `json:"data"`
}

// wapiPayload is the flat message shape posted by W-API.
type wapiPayload struct {
	Phone     string `json:"phone" validate:"required"`
	Name      string `json:"senderName"`
	Body      string `json:"message"`
	MessageID string `json:"messageId"`
	FromMe    bool   `json:"fromMe"`
}

// extractEvolution maps an Evolution payload to an InboundMessage. ok is
// false for events that are not inbound messages.
func extractEvolution(p evolutionPayload) (InboundMessage, bool) {
	if !strings.EqualFold(p.Event, "messages.upsert") || p.Data.Key.FromMe {
		return InboundMessage{}, false
	}
	if p.Data.Key.RemoteJID == "" {
		return InboundMessage{}, false
	}

	body := p.Data.Message.Conversation
	if body == "" {
		body = p.Data.Message.ExtendedMessage.Text
	}

	return InboundMessage{
		Phone:             p.Data.Key.RemoteJID,
		Name:              p.Data.PushName,
		Body:              body,
		ProviderMessageID: p.Data.Key.ID,
	}, true
}

func extractWAPI(p wapiPayload) (InboundMessage, bool) {
	if p.FromMe || p.Phone == "" {
		return InboundMessage{}, false
	}
	return InboundMessage{
		Phone:             p.Phone,
		Name:              p.Name,
		Body:              p.Body,
		ProviderMessageID: p.MessageID,
	}, true
}
