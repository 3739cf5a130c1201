package encryption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"

	"finboard/internal/config"
	"finboard/internal/util"
)

var ErrDecryptionFailed = errors.New("decryption failed")

// SecretResolver turns configured secret material into the runtime token
// signing secret. With KMS enabled the environment carries only ciphertext;
// the plaintext secret exists in process memory alone.
type SecretResolver struct {
	cfg *config.Config
}

func NewSecretResolver(cfg *config.Config) *SecretResolver {
	return &SecretResolver{cfg: cfg}
}

// ResolveSigningSecret returns the HS256 signing secret, decrypting it
// through KMS when that is enabled. Called once at boot.
func (r *SecretResolver) ResolveSigningSecret(ctx context.Context) (string, error) {
	if !r.cfg.KMS.Enabled {
		if r.cfg.Auth.SigningSecret == "" {
			return "", errors.New("AUTH_SIGNING_SECRET is not set")
		}
		return r.cfg.Auth.SigningSecret, nil
	}

	if r.cfg.Auth.SigningSecretCiphertext == "" {
		return "", errors.New("AUTH_SIGNING_SECRET_CIPHERTEXT is not set")
	}

	blob, err := base64.StdEncoding.DecodeString(r.cfg.Auth.SigningSecretCiphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid base64", ErrDecryptionFailed)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := kms.NewFromConfig(awsCfg)

	input := &kms.DecryptInput{
		CiphertextBlob: blob,
	}
	if r.cfg.KMS.KeyID != "" {
		input.KeyId = aws.String(r.cfg.KMS.KeyID)
	}

	result, err := client.Decrypt(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	util.Info("Signing secret decrypted via KMS",
		zap.String("key_id", r.cfg.KMS.KeyID))

	return string(result.Plaintext), nil
}
