package service

import (
	"context"
	"errors"
	"testing"

	"voxmeter/internal/model"
	"voxmeter/internal/vapi"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	number vapi.PhoneNumber
	err    error
	calls  int
}

func (f *fakeRegistrar) CreatePhoneNumber(ctx context.Context, params vapi.CreatePhoneNumberParams) (vapi.PhoneNumber, error) {
	f.calls++
	if f.err != nil {
		return vapi.PhoneNumber{}, f.err
	}
	return f.number, nil
}

func TestIsUSPhoneNumber(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"+15551234567", true},
		{"+12025550100", true},
		{"+1555123456", false},    // nine digits
		{"+155512345678", false},  // eleven digits
		{"+445551234567", false},  // UK
		{"15551234567", false},    // missing plus
		{"+1 5551234567", false},  // whitespace
		{"+1-555-123-4567", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUSPhoneNumber(tt.number))
		})
	}
}

func TestResolvePhoneNumberUserProvider(t *testing.T) {
	repo := newFakeRepo()
	repo.defaultProvider = model.PhoneProvider{
		ID:                uuid.New(),
		UserID:            "user-1",
		ProviderName:      model.ProviderTwilio,
		PhoneNumber:       "+15551230001",
		VapiPhoneNumberID: "vapi-num-1",
		IsDefault:         true,
		IsActive:          true,
	}
	registrar := &fakeRegistrar{}
	svc := NewPhoneProviderService(repo, registrar, "platform-num", testLogger())

	ref, err := svc.ResolvePhoneNumber(context.Background(), "user-1", "+445551234567")

	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "vapi-num-1", ref.VapiPhoneNumberID)
	assert.False(t, ref.IsDefault)
	assert.Equal(t, 0, registrar.calls, "already registered number must not be re-registered")
}

func TestResolvePhoneNumberLazyRegistration(t *testing.T) {
	providerID := uuid.New()
	repo := newFakeRepo()
	repo.defaultProvider = model.PhoneProvider{
		ID:           providerID,
		UserID:       "user-1",
		ProviderName: model.ProviderTwilio,
		PhoneNumber:  "+15551230001",
		IsDefault:    true,
		IsActive:     true,
	}
	registrar := &fakeRegistrar{number: vapi.PhoneNumber{ID: "vapi-num-new"}}
	svc := NewPhoneProviderService(repo, registrar, "platform-num", testLogger())

	ref, err := svc.ResolvePhoneNumber(context.Background(), "user-1", "+15559990000")

	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "vapi-num-new", ref.VapiPhoneNumberID)
	assert.Equal(t, 1, registrar.calls)
	assert.Equal(t, "vapi-num-new", repo.vapiIDsSet[providerID])
}

func TestResolvePhoneNumberFallbackUSOnly(t *testing.T) {
	t.Run("US target uses platform number", func(t *testing.T) {
		svc := NewPhoneProviderService(newFakeRepo(), &fakeRegistrar{}, "platform-num", testLogger())

		ref, err := svc.ResolvePhoneNumber(context.Background(), "user-1", "+15551234567")

		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, "platform-num", ref.VapiPhoneNumberID)
		assert.True(t, ref.IsDefault)
	})

	t.Run("non-US target gets nothing", func(t *testing.T) {
		svc := NewPhoneProviderService(newFakeRepo(), &fakeRegistrar{}, "platform-num", testLogger())

		ref, err := svc.ResolvePhoneNumber(context.Background(), "user-1", "+445551234567")

		require.NoError(t, err)
		assert.Nil(t, ref)
	})

	t.Run("no target gets nothing", func(t *testing.T) {
		svc := NewPhoneProviderService(newFakeRepo(), &fakeRegistrar{}, "platform-num", testLogger())

		ref, err := svc.ResolvePhoneNumber(context.Background(), "user-1", "")

		require.NoError(t, err)
		assert.Nil(t, ref)
	})

	t.Run("no platform number configured gets nothing", func(t *testing.T) {
		svc := NewPhoneProviderService(newFakeRepo(), &fakeRegistrar{}, "", testLogger())

		ref, err := svc.ResolvePhoneNumber(context.Background(), "user-1", "+15551234567")

		require.NoError(t, err)
		assert.Nil(t, ref)
	})
}

func TestResolvePhoneNumberRegistrationFailureFallsBack(t *testing.T) {
	repo := newFakeRepo()
	repo.defaultProvider = model.PhoneProvider{
		ID:           uuid.New(),
		UserID:       "user-1",
		ProviderName: model.ProviderTwilio,
		PhoneNumber:  "+15551230001",
		IsDefault:    true,
		IsActive:     true,
	}
	registrar := &fakeRegistrar{err: errors.New("vapi unavailable")}
	svc := NewPhoneProviderService(repo, registrar, "platform-num", testLogger())

	ref, err := svc.ResolvePhoneNumber(context.Background(), "user-1", "+15559990000")

	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.True(t, ref.IsDefault)
	assert.Equal(t, "platform-num", ref.VapiPhoneNumberID)
}

func TestNoProviderMessage(t *testing.T) {
	assert.Contains(t, NoProviderMessage("+445551234567"), "non-US")
	assert.Contains(t, NoProviderMessage("+15551234567"), "No phone provider configured")
	assert.Contains(t, NoProviderMessage(""), "No phone provider configured")
}

func TestCreateProviderFirstBecomesDefault(t *testing.T) {
	repo := newFakeRepo()
	svc := NewPhoneProviderService(repo, &fakeRegistrar{}, "", testLogger())

	created, err := svc.CreateProvider(context.Background(), model.PhoneProvider{
		UserID:       "user-1",
		ProviderName: model.ProviderTwilio,
		PhoneNumber:  "+15551230001",
	})

	require.NoError(t, err)
	assert.True(t, created.IsDefault)
	assert.True(t, created.IsActive)
	assert.NotEqual(t, uuid.Nil, created.ID)

	// A second provider does not steal the default.
	second, err := svc.CreateProvider(context.Background(), model.PhoneProvider{
		UserID:       "user-1",
		ProviderName: model.ProviderPlivo,
		PhoneNumber:  "+15551230002",
	})

	require.NoError(t, err)
	assert.False(t, second.IsDefault)
}
