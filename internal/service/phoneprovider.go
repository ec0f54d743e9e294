package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"voxmeter/internal/model"
	"voxmeter/internal/repository"
	"voxmeter/internal/vapi"

	"github.com/google/uuid"
)

// usPhonePattern matches exactly +1 followed by ten digits; no extensions or
// formatting characters are tolerated.
var usPhonePattern = regexp.MustCompile(`^\+1\d{10}$`)

// IsUSPhoneNumber reports whether a number is a US E.164 number.
func IsUSPhoneNumber(number string) bool {
	return usPhonePattern.MatchString(number)
}

// PhoneNumberRegistrar registers numbers with the voice platform.
type PhoneNumberRegistrar interface {
	CreatePhoneNumber(ctx context.Context, params vapi.CreatePhoneNumberParams) (vapi.PhoneNumber, error)
}

// PhoneProviderService resolves which phone-number identity an outbound call
// uses and manages user telephony providers. Resolution is strictly
// two-tier: the user's own provider first, then the shared platform number.
// The shared number only serves US destinations; international traffic on
// the unmetered fallback is not allowed.
type PhoneProviderService struct {
	repo                 repository.Repository
	registrar            PhoneNumberRegistrar
	defaultPhoneNumberID string
	logger               *slog.Logger
}

func NewPhoneProviderService(repo repository.Repository, registrar PhoneNumberRegistrar, defaultPhoneNumberID string, logger *slog.Logger) *PhoneProviderService {
	return &PhoneProviderService{
		repo:                 repo,
		registrar:            registrar,
		defaultPhoneNumberID: defaultPhoneNumberID,
		logger:               logger,
	}
}

// ResolvePhoneNumber picks the outbound caller identity for a call to
// targetPhoneNumber (optional). Returns nil when no identity is available;
// the caller should surface NoProviderMessage to the user.
func (s *PhoneProviderService) ResolvePhoneNumber(ctx context.Context, userID, targetPhoneNumber string) (*model.PhoneNumberRef, error) {
	provider, err := s.repo.GetDefaultPhoneProvider(ctx, userID)
	switch {
	case err == nil:
		if provider.VapiPhoneNumberID == "" {
			// Lazily register the number on first use and cache the id.
			if err := s.registerProviderNumber(ctx, &provider); err != nil {
				s.logger.ErrorContext(ctx, "Failed to register provider number",
					"user_id", userID, "provider_id", provider.ID, "error", err)
				return s.fallback(ctx, userID, targetPhoneNumber), nil
			}
		}
		return &model.PhoneNumberRef{VapiPhoneNumberID: provider.VapiPhoneNumberID, IsDefault: false}, nil
	case errors.Is(err, repository.ErrPhoneProviderNotFound):
		return s.fallback(ctx, userID, targetPhoneNumber), nil
	default:
		return nil, fmt.Errorf("failed to resolve phone provider: %w", err)
	}
}

func (s *PhoneProviderService) fallback(ctx context.Context, userID, targetPhoneNumber string) *model.PhoneNumberRef {
	if targetPhoneNumber == "" || !IsUSPhoneNumber(targetPhoneNumber) || s.defaultPhoneNumberID == "" {
		return nil
	}
	s.logger.DebugContext(ctx, "Using platform default phone number", "user_id", userID)
	return &model.PhoneNumberRef{VapiPhoneNumberID: s.defaultPhoneNumberID, IsDefault: true}
}

func (s *PhoneProviderService) registerProviderNumber(ctx context.Context, provider *model.PhoneProvider) error {
	number, err := s.registrar.CreatePhoneNumber(ctx, vapi.CreatePhoneNumberParams{
		Provider:    provider.ProviderName,
		Number:      provider.PhoneNumber,
		Credentials: provider.Credentials,
	})
	if err != nil {
		return err
	}
	if err := s.repo.SetVapiPhoneNumberID(ctx, provider.ID, number.ID); err != nil {
		return fmt.Errorf("failed to cache phone number id: %w", err)
	}
	provider.VapiPhoneNumberID = number.ID
	return nil
}

// NoProviderMessage explains a nil resolution result to the end user.
func NoProviderMessage(targetPhoneNumber string) string {
	if targetPhoneNumber != "" && !IsUSPhoneNumber(targetPhoneNumber) {
		return "Calls to non-US numbers require your own phone provider. Please connect a Twilio, Plivo or Nexmo account in settings."
	}
	return "No phone provider configured. Please connect a Twilio, Plivo or Nexmo account in settings."
}

// CreateProvider stores a user's telephony provider. When it is the user's
// first active provider it becomes the default.
func (s *PhoneProviderService) CreateProvider(ctx context.Context, provider model.PhoneProvider) (model.PhoneProvider, error) {
	existing, err := s.repo.ListPhoneProviders(ctx, provider.UserID)
	if err != nil {
		return model.PhoneProvider{}, fmt.Errorf("failed to list phone providers: %w", err)
	}

	provider.ID = uuid.New()
	provider.IsActive = true
	if len(existing) == 0 {
		provider.IsDefault = true
	}
	now := time.Now()
	provider.CreatedAt = now
	provider.UpdatedAt = now

	if err := s.repo.CreatePhoneProvider(ctx, provider); err != nil {
		return model.PhoneProvider{}, fmt.Errorf("failed to create phone provider: %w", err)
	}

	s.logger.InfoContext(ctx, "Phone provider created",
		"user_id", provider.UserID,
		"provider_id", provider.ID,
		"provider", provider.ProviderName,
		"is_default", provider.IsDefault)
	return provider, nil
}

func (s *PhoneProviderService) ListProviders(ctx context.Context, userID string) ([]model.PhoneProvider, error) {
	return s.repo.ListPhoneProviders(ctx, userID)
}

func (s *PhoneProviderService) RemoveProvider(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.repo.DeactivatePhoneProvider(ctx, userID, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Phone provider removed", "user_id", userID, "provider_id", id)
	return nil
}
