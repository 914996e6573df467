package secrets

import "testing"

func TestParseReference(t *testing.T) {
	vault, item, field, err := parseReference("op://infra/db-creds/password")
	if err != nil {
		t.Fatal(err)
	}
	if vault != "infra" || item != "db-creds" || field != "password" {
		t.Fatalf("got (%q, %q, %q)", vault, item, field)
	}
}

func TestParseReferenceRejectsMalformed(t *testing.T) {
	cases := []string{
		"infra/db-creds/password",
		"op://infra/db-creds",
		"op://infra/db-creds/password/extra",
	}
	for _, c := range cases {
		if _, _, _, err := parseReference(c); err == nil {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}

func TestNewResolverRequiresHostAndToken(t *testing.T) {
	if _, err := NewResolver("", "token"); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewResolver("http://localhost:8080", ""); err == nil {
		t.Fatal("expected error for missing token")
	}
}
