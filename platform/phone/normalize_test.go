package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"11 99999-0000", "+5511999990000"},
		{"+55 11 99999-0000", "+5511999990000"},
		{"+5511999990000", "+5511999990000"},
		{"not a number", "not a number"},
		{"  ", ""},
	}

	for _, tc := range cases {
		if got := NormalizeE164(tc.input); got != tc.want {
			t.Fatalf("NormalizeE164(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestWhatsAppJID(t *testing.T) {
	if got := WhatsAppJID("11 99999-0000"); got != "5511999990000@s.whatsapp.net" {
		t.Fatalf("got %q", got)
	}

	// Group and broadcast JIDs pass through unchanged.
	jid := "123456789-987654@g.us"
	if got := WhatsAppJID(jid); got != jid {
		t.Fatalf("got %q", got)
	}

	if got := WhatsAppJID(""); got != "" {
		t.Fatalf("got %q", got)
	}
}
