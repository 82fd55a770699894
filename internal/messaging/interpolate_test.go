package messaging

import "testing"

func TestInterpolate_DoubleBrace(t *testing.T) {
	contact := Contact{Name: "Maria", Phone: "+5511999990000", Company: "Acme"}

	got := Interpolate("Olá {{nome}}, aqui é da {{empresa}}.", contact, DoubleBrace)
	want := "Olá Maria, aqui é da Acme."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInterpolate_SingleBrace(t *testing.T) {
	contact := Contact{Name: "João", Email: "joao@example.com"}

	got := Interpolate("Oi {nome}, confirma seu e-mail {email}?", contact, SingleBrace)
	want := "Oi João, confirma seu e-mail joao@example.com?"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInterpolate_CaseInsensitive(t *testing.T) {
	contact := Contact{Name: "Ana"}

	got := Interpolate("{{NOME}} e {{Name}}", contact, DoubleBrace)
	if got != "Ana e Ana" {
		t.Fatalf("got %q", got)
	}
}

func TestInterpolate_EmptyAttributeBecomesEmptyString(t *testing.T) {
	contact := Contact{Name: "Ana"}

	got := Interpolate("Empresa: {{empresa}}.", contact, DoubleBrace)
	if got != "Empresa: ." {
		t.Fatalf("expected empty substitution, got %q", got)
	}
}

func TestInterpolate_UnrecognizedPlaceholderKept(t *testing.T) {
	contact := Contact{Name: "Ana"}

	got := Interpolate("Olá {{nome}}, código {{codigo}}", contact, DoubleBrace)
	want := "Olá Ana, código {{codigo}}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInterpolate_DollarInAttributeKeptLiteral(t *testing.T) {
	contact := Contact{Name: "Maria $100", Notes: "pagou R$ 50"}

	got := Interpolate("Olá {{nome}}: {{observacoes}}", contact, DoubleBrace)
	want := "Olá Maria $100: pagou R$ 50"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInterpolate_StylesDoNotCross(t *testing.T) {
	contact := Contact{Name: "Ana"}

	got := Interpolate("Olá {nome}", contact, DoubleBrace)
	if got != "Olá {nome}" {
		t.Fatalf("double-brace style replaced a single-brace token: %q", got)
	}
}

func TestInterpolate_EmptyTemplate(t *testing.T) {
	if got := Interpolate("", Contact{Name: "Ana"}, DoubleBrace); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
