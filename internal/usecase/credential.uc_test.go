package usecase

import (
	"context"
	"errors"
	"testing"

	"payauth-service/internal/domain"
	xerrors "payauth-service/pkg/xerrors"

	"go.uber.org/zap"
)

func newCredentialFixture() (*CredentialUsecase, *fakeCredRepo, *memFreshness) {
	creds := newFakeCredRepo()
	freshness := newMemFreshness()
	return NewCredentialUsecase(creds, freshness, zap.NewNop()), creds, freshness
}

func TestRegisterRequiresFreshAuth(t *testing.T) {
	uc, _, _ := newCredentialFixture()

	_, err := uc.Register(context.Background(), "sess_1", "acct_1", domain.CredentialVoice, []byte("voiceprint"), "phone mic")
	if !errors.Is(err, xerrors.ErrFreshAuthRequired) {
		t.Fatalf("err = %v, want ErrFreshAuthRequired", err)
	}
}

func TestRegisterAndDuplicate(t *testing.T) {
	uc, _, freshness := newCredentialFixture()
	_ = freshness.MarkFresh(context.Background(), "sess_1")

	cred, err := uc.Register(context.Background(), "sess_1", "acct_1", domain.CredentialVoice, []byte("voiceprint"), "phone mic")
	if err != nil {
		t.Fatal(err)
	}
	if !cred.IsActive || cred.Type != domain.CredentialVoice {
		t.Fatalf("cred = %+v", cred)
	}

	// Second active enrollment of the same type is refused.
	_, err = uc.Register(context.Background(), "sess_1", "acct_1", domain.CredentialVoice, []byte("other"), "")
	if !errors.Is(err, xerrors.ErrDuplicateCredential) {
		t.Fatalf("err = %v, want ErrDuplicateCredential", err)
	}

	// A different account is unaffected.
	if _, err := uc.Register(context.Background(), "sess_1", "acct_2", domain.CredentialVoice, []byte("voiceprint"), ""); err != nil {
		t.Fatalf("other account: %v", err)
	}
}

func TestRegisterRejectsPINType(t *testing.T) {
	uc, _, freshness := newCredentialFixture()
	_ = freshness.MarkFresh(context.Background(), "sess_1")

	_, err := uc.Register(context.Background(), "sess_1", "acct_1", domain.CredentialPIN, []byte("1234"), "")
	if !errors.Is(err, xerrors.ErrInvalidTemplate) {
		t.Fatalf("err = %v, want ErrInvalidTemplate", err)
	}
}

func TestSetActiveIsIdempotent(t *testing.T) {
	uc, _, freshness := newCredentialFixture()
	_ = freshness.MarkFresh(context.Background(), "sess_1")

	cred, err := uc.Register(context.Background(), "sess_1", "acct_1", domain.CredentialVoice, []byte("voiceprint"), "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := uc.SetActive(context.Background(), "sess_1", "acct_1", cred.ID, false)
	if err != nil || got.IsActive {
		t.Fatalf("disable: active=%v err=%v", got.IsActive, err)
	}

	// Disabling again is a no-op, not an error.
	got, err = uc.SetActive(context.Background(), "sess_1", "acct_1", cred.ID, false)
	if err != nil || got.IsActive {
		t.Fatalf("repeat disable: active=%v err=%v", got.IsActive, err)
	}
}

func TestReactivateConflictsWithActiveSameType(t *testing.T) {
	uc, _, freshness := newCredentialFixture()
	_ = freshness.MarkFresh(context.Background(), "sess_1")

	first, err := uc.Register(context.Background(), "sess_1", "acct_1", domain.CredentialVoice, []byte("voiceprint"), "phone mic")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uc.SetActive(context.Background(), "sess_1", "acct_1", first.ID, false); err != nil {
		t.Fatal(err)
	}
	second, err := uc.Register(context.Background(), "sess_1", "acct_1", domain.CredentialVoice, []byte("newer print"), "headset")
	if err != nil {
		t.Fatal(err)
	}

	// Re-enabling the first while the second is active violates
	// one-active-per-type and surfaces as a conflict, not a server error.
	_, err = uc.SetActive(context.Background(), "sess_1", "acct_1", first.ID, true)
	if !errors.Is(err, xerrors.ErrDuplicateCredential) {
		t.Fatalf("err = %v, want ErrDuplicateCredential", err)
	}

	// The second credential stays active and usable.
	got, err := uc.SetActive(context.Background(), "sess_1", "acct_1", second.ID, true)
	if err != nil || !got.IsActive {
		t.Fatalf("second credential: active=%v err=%v", got.IsActive, err)
	}
}

func TestCredentialOwnershipIsEnforced(t *testing.T) {
	uc, _, freshness := newCredentialFixture()
	_ = freshness.MarkFresh(context.Background(), "sess_1")

	cred, err := uc.Register(context.Background(), "sess_1", "acct_1", domain.CredentialVoice, []byte("voiceprint"), "")
	if err != nil {
		t.Fatal(err)
	}

	// Another account sees not-found, never forbidden.
	if _, err := uc.SetActive(context.Background(), "sess_1", "acct_2", cred.ID, false); !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := uc.Remove(context.Background(), "sess_1", "acct_2", cred.ID); !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveCredential(t *testing.T) {
	uc, creds, freshness := newCredentialFixture()
	_ = freshness.MarkFresh(context.Background(), "sess_1")

	cred, err := uc.Register(context.Background(), "sess_1", "acct_1", domain.CredentialLegacyFingerprint, []byte("minutiae"), "old sensor")
	if err != nil {
		t.Fatal(err)
	}
	if err := uc.Remove(context.Background(), "sess_1", "acct_1", cred.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := creds.GetByID(context.Background(), cred.ID); !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("credential still present: %v", err)
	}
}
