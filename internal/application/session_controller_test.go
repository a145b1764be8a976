package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/ports/mocks"
)

func TestEnsureAuthorizedReusesSilentSession(t *testing.T) {
	t.Parallel()

	authorizer := mocks.NewMockAuthorizer(t)
	authorizer.EXPECT().Authorize(mockAnyContext(), false).Return(domain.Session{AccountID: "acc-1", AccessToken: "tok"}, nil)

	controller := NewSessionController(domain.ProviderDropbox, authorizer, nil)
	session, outcome, err := controller.EnsureAuthorized(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthOutcomeAlreadyAuthenticated, outcome)
	assert.Equal(t, "acc-1", session.AccountID)
	assert.Equal(t, "acc-1", controller.AccountID())
}

func TestEnsureAuthorizedFallsBackToInteractive(t *testing.T) {
	t.Parallel()

	authorizer := mocks.NewMockAuthorizer(t)
	authorizer.EXPECT().Authorize(mockAnyContext(), false).Return(domain.Session{}, fmt.Errorf("no tokens: %w", domain.ErrInteractionRequired))
	authorizer.EXPECT().Authorize(mockAnyContext(), true).Return(domain.Session{AccountID: "acc-2"}, nil)

	controller := NewSessionController(domain.ProviderGoogleDrive, authorizer, nil)
	_, outcome, err := controller.EnsureAuthorized(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthOutcomeAuthenticated, outcome)
	assert.Equal(t, "acc-2", controller.AccountID())
}

func TestEnsureAuthorizedCancellationIsNotAnError(t *testing.T) {
	t.Parallel()

	authorizer := mocks.NewMockAuthorizer(t)
	authorizer.EXPECT().Authorize(mockAnyContext(), false).Return(domain.Session{}, domain.ErrInteractionRequired)
	authorizer.EXPECT().Authorize(mockAnyContext(), true).Return(domain.Session{}, fmt.Errorf("browser: %w", domain.ErrAuthCancelled))

	controller := NewSessionController(domain.ProviderOneDrive, authorizer, nil)
	_, outcome, err := controller.EnsureAuthorized(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthOutcomeCancelled, outcome)
	assert.Empty(t, controller.AccountID())
}

func TestEnsureAuthorizedProviderFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		silent      error
		interactive error
	}{
		{name: "silent network failure", silent: errors.New("dial tcp: refused")},
		{name: "interactive provider error", silent: domain.ErrInteractionRequired, interactive: errors.New("token endpoint 500")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			authorizer := &fakeAuthorizer{silentErr: tt.silent, interactErr: tt.interactive}
			controller := NewSessionController(domain.ProviderDropbox, authorizer, nil)
			_, _, err := controller.EnsureAuthorized(context.Background(), true)
			require.ErrorIs(t, err, domain.ErrProviderFailure)
		})
	}
}

func TestEnsureAuthorizedNonInteractiveReportsInteractionRequired(t *testing.T) {
	t.Parallel()

	authorizer := &fakeAuthorizer{silentErr: domain.ErrInteractionRequired}
	controller := NewSessionController(domain.ProviderDropbox, authorizer, nil)

	_, _, err := controller.EnsureAuthorized(context.Background(), false)
	require.ErrorIs(t, err, domain.ErrInteractionRequired)
	assert.Equal(t, int32(0), authorizer.interactive.Load())
}

func TestSignOutPolicies(t *testing.T) {
	t.Parallel()

	authorizer := mocks.NewMockAuthorizer(t)
	authorizer.EXPECT().Authorize(mockAnyContext(), false).Return(domain.Session{AccountID: "acc"}, nil)
	authorizer.EXPECT().SignOut(mockAnyContext(), false).Return(nil).Once()
	authorizer.EXPECT().SignOut(mockAnyContext(), true).Return(nil).Once()

	controller := NewSessionController(domain.ProviderDropbox, authorizer, nil)
	_, _, err := controller.EnsureAuthorized(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, controller.SignOut(context.Background(), domain.SignOutAppOnly))
	assert.Empty(t, controller.AccountID())
	require.NoError(t, controller.SignOut(context.Background(), domain.SignOutRevoke))
}
