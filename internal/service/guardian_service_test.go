package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-outpass-api/internal/models"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
)

func seedGuardianPending(t *testing.T, repo *outingRepoStub) (*models.OutingRequest, string) {
	t.Helper()
	outingSvc := newOutingService(repo, &auditStub{}, &streamStub{})
	outing, err := outingSvc.Create(context.Background(), validCreateRequest(), studentClaims("student-1", "Meera Rao"))
	require.NoError(t, err)
	stored := repo.outings[outing.ID]
	require.NotNil(t, stored.GuardianApprovalToken)
	return outing, *stored.GuardianApprovalToken
}

func TestGuardianServiceResolve(t *testing.T) {
	repo := newOutingRepoStub()
	_, tok := seedGuardianPending(t, repo)
	svc := NewGuardianService(repo, &auditStub{}, nil, nil, nil, nil)

	view, err := svc.Resolve(context.Background(), tok)
	require.NoError(t, err)
	require.Equal(t, "Meera Rao", view.StudentName)
	require.Equal(t, "Asha Rao", view.GuardianName)
	require.NotEmpty(t, view.SummarizedReason)
	require.Equal(t, string(models.OutingStatusRequested), view.Status)
}

func TestGuardianServiceResolveUnknownToken(t *testing.T) {
	svc := NewGuardianService(newOutingRepoStub(), &auditStub{}, nil, nil, nil, nil)

	_, err := svc.Resolve(context.Background(), "no-such-token")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGuardianServiceExpiredTokenLooksUnknown(t *testing.T) {
	repo := newOutingRepoStub()
	outing, tok := seedGuardianPending(t, repo)
	expired := time.Now().UTC().Add(-time.Minute)
	repo.outings[outing.ID].GuardianApprovalExpiresAt = &expired
	svc := NewGuardianService(repo, &auditStub{}, nil, nil, nil, nil)

	// Both public entry points must emit the same error an unknown token
	// gets, code included, so responses carry no expiry oracle.
	_, err := svc.Resolve(context.Background(), tok)
	require.Error(t, err)
	typed := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
	require.Equal(t, appErrors.ErrNotFound.Message, typed.Message)
	require.Equal(t, appErrors.ErrNotFound.Status, typed.Status)

	err = svc.Decide(context.Background(), tok, true)
	require.Error(t, err)
	typed = appErrors.FromError(err)
	require.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
	require.Equal(t, appErrors.ErrNotFound.Message, typed.Message)

	// The internal classification keeps the expiry distinct for logging.
	_, err = svc.resolve(context.Background(), tok)
	require.ErrorIs(t, err, appErrors.ErrTokenExpired)
}

func TestGuardianServiceApprove(t *testing.T) {
	repo := newOutingRepoStub()
	audit := &auditStub{}
	stream := &streamStub{}
	outing, tok := seedGuardianPending(t, repo)
	svc := NewGuardianService(repo, audit, stream, nil, nil, nil)

	require.NoError(t, svc.Decide(context.Background(), tok, true))

	stored := repo.outings[outing.ID]
	require.Equal(t, models.OutingStatusGuardianApproved, stored.Status)
	require.Equal(t, models.ApprovalApproved, stored.GuardianApprovalStatus)
	require.Nil(t, stored.GuardianApprovalToken)
	require.Nil(t, stored.GuardianApprovalLink)
	require.NotNil(t, stored.GuardianApprovedAt)
	require.Len(t, audit.logs, 1)
	require.Nil(t, audit.logs[0].UserID)
	require.Equal(t, models.OutingEventGuardianApproved, stream.events[len(stream.events)-1].Event)
}

func TestGuardianServiceReject(t *testing.T) {
	repo := newOutingRepoStub()
	stream := &streamStub{}
	outing, tok := seedGuardianPending(t, repo)
	svc := NewGuardianService(repo, &auditStub{}, stream, nil, nil, nil)

	require.NoError(t, svc.Decide(context.Background(), tok, false))

	stored := repo.outings[outing.ID]
	require.Equal(t, models.OutingStatusRejected, stored.Status)
	require.Equal(t, models.ApprovalRejected, stored.GuardianApprovalStatus)
	require.Nil(t, stored.GuardianApprovalToken)
	require.Equal(t, models.OutingEventGuardianRejected, stream.events[len(stream.events)-1].Event)
}

func TestGuardianServiceTokenIsSingleUse(t *testing.T) {
	repo := newOutingRepoStub()
	_, tok := seedGuardianPending(t, repo)
	svc := NewGuardianService(repo, &auditStub{}, nil, nil, nil, nil)

	require.NoError(t, svc.Decide(context.Background(), tok, true))

	// The token was nulled by the first decision, so a replay of the same
	// link no longer resolves at all.
	err := svc.Decide(context.Background(), tok, false)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGuardianServiceReplayAfterRaceIsAlreadyProcessed(t *testing.T) {
	repo := newOutingRepoStub()
	outing, tok := seedGuardianPending(t, repo)
	svc := NewGuardianService(repo, &auditStub{}, nil, nil, nil, nil)

	// Simulate the losing half of two concurrent submissions: the row was
	// decided between this caller's resolve and its write, but the token
	// column still matches what the caller saw.
	resolved, err := svc.resolve(context.Background(), tok)
	require.NoError(t, err)
	stored := repo.outings[outing.ID]
	stored.GuardianApprovalStatus = models.ApprovalApproved
	stored.Status = models.OutingStatusGuardianApproved
	keep := tok
	stored.GuardianApprovalToken = &keep

	err = svc.apply(context.Background(), resolved.ID, tok, false)
	require.Error(t, err)
	classified := svc.classify(context.Background(), resolved.ID, tok)
	require.Error(t, classified)
	require.Equal(t, appErrors.ErrAlreadyProcessed.Code, appErrors.FromError(classified).Code)
}
