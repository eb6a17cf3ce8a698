package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/repository"
)

const maxApiKeysPerAccount = 5

type ApiKeyService interface {
	Create(ctx context.Context, accountID int64) error
	List(ctx context.Context, accountID int64) ([]*models.ApiKey, error)
	GetAccountID(ctx context.Context, apiKey string) (int64, error)
	RemoveAPIKey(ctx context.Context, accountID, keyID int64) error
}

type apiKeyService struct {
	k repository.ApiKeyRepository
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{
		k: k,
	}
}

func (s *apiKeyService) Create(ctx context.Context, accountID int64) error {
	keys, err := s.k.GetByAccountID(ctx, accountID)
	if err != nil {
		return err
	}

	if len(keys) >= maxApiKeysPerAccount {
		err = fmt.Errorf("only %d API keys can be created", maxApiKeysPerAccount)
		slog.Info(err.Error())
		return err
	}

	key, err := gonanoid.New(32)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("error generating API key")
	}

	apiKey := &models.ApiKey{
		AccountID: accountID,
		ApiKey:    key,
	}

	_, err = s.k.Create(ctx, apiKey)
	if err != nil {
		return fmt.Errorf("error saving API key")
	}
	return nil
}

func (s *apiKeyService) GetAccountID(ctx context.Context, apiKey string) (int64, error) {
	accountID, isExist, err := s.k.GetByKey(ctx, apiKey)
	if err != nil {
		return 0, err
	}

	if !isExist {
		return 0, errors.New("key doesn't exist")
	}

	return *accountID, nil
}

func (s *apiKeyService) List(ctx context.Context, accountID int64) ([]*models.ApiKey, error) {
	apiKeys, err := s.k.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("error getting API keys")
	}
	return apiKeys, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, accountID, keyID int64) error {
	var err error

	if accountID == 0 {
		err = errors.New("account id is not valid")
		slog.Info(err.Error())
		return err
	}

	if keyID == 0 {
		err = errors.New("key id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.k.CheckByAccountID(ctx, keyID, accountID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("key doesn't exist")
		slog.Info(err.Error())
		return err
	}

	return s.k.Remove(ctx, keyID)
}
