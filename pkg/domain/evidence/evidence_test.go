package evidence

import "testing"

func TestVerifyAcceptsMatchingPayload(t *testing.T) {
	payload := []byte(`{"foo":"bar"}`)
	ref := Ref{SHA256: Hash(payload)}
	if err := Verify(ref, payload); err != nil {
		t.Fatalf("expected verification to succeed, got %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	original := []byte(`{"foo":"bar"}`)
	ref := Ref{SHA256: Hash(original)}
	tampered := []byte(`{"foo":"baz"}`)
	if err := Verify(ref, tampered); err == nil {
		t.Fatal("expected verification to fail for tampered payload")
	}
}

func TestURICanonicalForm(t *testing.T) {
	got := URI("crm_account", "acct-1", "ev-1")
	want := "evidence/crm_account/acct-1/ev-1.json"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
