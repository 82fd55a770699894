package messaging

import "testing"

func TestTranslateError_KnownSubstrings(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Connection closed: instance not found", "Instância do WhatsApp não encontrada. Verifique a conexão."},
		{"connection closed by peer", "A conexão com o WhatsApp foi encerrada. Reconecte o dispositivo."},
		{"INSTANCE IS NOT CONNECTED", "O WhatsApp está desconectado. Leia o QR Code novamente."},
		{"Request failed: 429 Too Many Requests", "Limite de envio atingido. Aguarde alguns minutos e tente novamente."},
		{"dial tcp: i/o timeout", "Tempo de resposta esgotado. Tente novamente."},
		{"401 Unauthorized", "Credenciais da API inválidas. Verifique a configuração da conexão."},
		{"dial tcp 10.0.0.1:8080: connect: connection refused", "Não foi possível conectar ao servidor da API."},
		{"lookup evo.internal: no such host", "Servidor da API não encontrado. Verifique a URL da conexão."},
		{"{\"exists\":false}", "Este número não possui WhatsApp."},
		{"535 Authentication failed", "Falha de autenticação no servidor de e-mail."},
		{"x509: self signed certificate", "O servidor de e-mail usa um certificado inválido."},
	}

	for _, tc := range cases {
		if got := TranslateError(tc.raw); got != tc.want {
			t.Fatalf("TranslateError(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestTranslateError_FirstMatchWins(t *testing.T) {
	// Contains both "connection closed" and "instance not found"; the
	// instance entry is declared first and must win.
	got := TranslateError("Connection closed: instance not found")
	if got != "Instância do WhatsApp não encontrada. Verifique a conexão." {
		t.Fatalf("expected instance phrase, got %q", got)
	}
}

func TestTranslateError_UnmatchedPassesThrough(t *testing.T) {
	raw := "something entirely new went wrong"
	if got := TranslateError(raw); got != raw {
		t.Fatalf("expected pass-through, got %q", got)
	}
}

func TestTranslateError_EmptyInput(t *testing.T) {
	if got := TranslateError(""); got != "Erro desconhecido ao enviar mensagem." {
		t.Fatalf("expected generic phrase, got %q", got)
	}
	if got := TranslateError("   "); got != "Erro desconhecido ao enviar mensagem." {
		t.Fatalf("expected generic phrase for blank input, got %q", got)
	}
}

func TestTranslateError_Pure(t *testing.T) {
	raw := "rate limit exceeded"
	first := TranslateError(raw)
	second := TranslateError(raw)
	if first != second {
		t.Fatalf("expected identical results, got %q and %q", first, second)
	}
}
