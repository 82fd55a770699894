// Package messaging holds the helpers shared by every message dispatcher:
// gateway error translation and template variable interpolation.
package messaging

import "strings"

type translation struct {
	match  string
	phrase string
}

// translationTable maps raw gateway/SMTP error substrings to user-facing
// phrases. Matching is case-insensitive and the first entry that matches
// wins, so declaration order is part of the behavior.
var translationTable = []translation{
	{"instance not found", "Instância do WhatsApp não encontrada. Verifique a conexão."},
	{"instance is not connected", "O WhatsApp está desconectado. Leia o QR Code novamente."},
	{"connection closed", "A conexão com o WhatsApp foi encerrada. Reconecte o dispositivo."},
	{"not connected", "O WhatsApp está desconectado. Reconecte o dispositivo."},
	{"invalid number", "Número de telefone inválido."},
	{"not a valid", "Número de telefone inválido."},
	{"exists\":false", "Este número não possui WhatsApp."},
	{"not on whatsapp", "Este número não possui WhatsApp."},
	{"number does not exist", "Este número não possui WhatsApp."},
	{"rate limit", "Limite de envio atingido. Aguarde alguns minutos e tente novamente."},
	{"too many requests", "Limite de envio atingido. Aguarde alguns minutos e tente novamente."},
	{"timed out", "Tempo de resposta esgotado. Tente novamente."},
	{"timeout", "Tempo de resposta esgotado. Tente novamente."},
	{"unauthorized", "Credenciais da API inválidas. Verifique a configuração da conexão."},
	{"invalid api key", "Credenciais da API inválidas. Verifique a configuração da conexão."},
	{"forbidden", "Acesso negado pela API. Verifique as credenciais da conexão."},
	{"connection refused", "Não foi possível conectar ao servidor da API."},
	{"no such host", "Servidor da API não encontrado. Verifique a URL da conexão."},
	{"failed to download media", "Não foi possível baixar a mídia da mensagem."},
	{"media upload", "Falha ao enviar a mídia da mensagem."},
	{"authentication failed", "Falha de autenticação no servidor de e-mail."},
	{"invalid login", "Falha de autenticação no servidor de e-mail."},
	{"username and password not accepted", "Falha de autenticação no servidor de e-mail."},
	{"self signed certificate", "O servidor de e-mail usa um certificado inválido."},
	{"mailbox unavailable", "Endereço de e-mail do destinatário inválido."},
	{"recipient address rejected", "Endereço de e-mail do destinatário inválido."},
}

const unknownError = "Erro desconhecido ao enviar mensagem."

// TranslateError converts a raw provider or SMTP error into a user-facing
// phrase. Unmatched messages pass through unchanged; empty input yields a
// generic phrase. The function is pure.
func TranslateError(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return unknownError
	}

	lowered := strings.ToLower(raw)
	for _, entry := range translationTable {
		if strings.Contains(lowered, entry.match) {
			return entry.phrase
		}
	}

	return raw
}
