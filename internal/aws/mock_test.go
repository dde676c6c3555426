package aws

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// MockKMSClient implements KMSClientInterface for testing
type MockKMSClient struct {
	dataKey          []byte
	encryptedKey     []byte
	keyEnabled       bool
	generateErr      error
	describeErr      error
	decryptCalled    bool
	decryptCallCount int
	lastContext      map[string]string
	decryptFunc      func(ctx context.Context, encryptedKey []byte) ([]byte, error)
}

func (m *MockKMSClient) GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	m.lastContext = params.EncryptionContext
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return &kms.GenerateDataKeyOutput{
		Plaintext:      m.dataKey,
		CiphertextBlob: m.encryptedKey,
		KeyId:          params.KeyId,
	}, nil
}

func (m *MockKMSClient) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	m.decryptCalled = true
	m.decryptCallCount++
	m.lastContext = params.EncryptionContext

	if m.decryptFunc != nil {
		plaintext, err := m.decryptFunc(ctx, params.CiphertextBlob)
		if err != nil {
			return nil, err
		}
		return &kms.DecryptOutput{
			Plaintext: plaintext,
			KeyId:     aws.String("test-key-id"),
		}, nil
	}

	return &kms.DecryptOutput{
		Plaintext: m.dataKey,
		KeyId:     aws.String("test-key-id"),
	}, nil
}

func (m *MockKMSClient) DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	if m.describeErr != nil {
		return nil, m.describeErr
	}
	return &kms.DescribeKeyOutput{
		KeyMetadata: &types.KeyMetadata{
			KeyId:   params.KeyId,
			Enabled: m.keyEnabled,
		},
	}, nil
}

var errKMSUnavailable = errors.New("kms unavailable")
