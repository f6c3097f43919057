package auth

import (
	"context"
	"fmt"

	"kirohq/gateway/pkg/security/secrets"
	"kirohq/gateway/pkg/storage"
)

// StoreOrigin is an encrypted account row in the gateway database.
// Pool-managed accounts use it so refreshed tokens land back in the
// row they came from.
type StoreOrigin struct {
	Store     *storage.Store
	Cipher    *secrets.Cipher
	AccountID int64
}

func (o *StoreOrigin) External() bool { return false }

// Load decrypts the account's credential columns.
func (o *StoreOrigin) Load(ctx context.Context) (Credentials, error) {
	acct, err := o.Store.GetAccount(ctx, o.AccountID)
	if err != nil {
		return Credentials{}, err
	}

	creds := Credentials{
		AuthKind:   acct.AuthKind,
		ProfileArn: acct.ProfileArn,
		Region:     acct.Region,
		ExpiresAt:  acct.ExpiresAt,
	}
	if creds.RefreshToken, err = o.Cipher.DecryptString(acct.RefreshTokenEnc); err != nil {
		return Credentials{}, fmt.Errorf("decrypt refresh token for account %d: %w", o.AccountID, err)
	}
	if creds.AccessToken, err = o.Cipher.DecryptString(acct.AccessTokenEnc); err != nil {
		return Credentials{}, fmt.Errorf("decrypt access token for account %d: %w", o.AccountID, err)
	}
	if creds.ClientID, err = o.Cipher.DecryptString(acct.ClientIDEnc); err != nil {
		return Credentials{}, fmt.Errorf("decrypt client id for account %d: %w", o.AccountID, err)
	}
	if creds.ClientSecret, err = o.Cipher.DecryptString(acct.ClientSecretEnc); err != nil {
		return Credentials{}, fmt.Errorf("decrypt client secret for account %d: %w", o.AccountID, err)
	}
	return creds, nil
}

// Save re-encrypts the rotated tokens into the account row. The client
// id and secret never rotate on refresh and are left untouched.
func (o *StoreOrigin) Save(ctx context.Context, creds Credentials) error {
	refreshEnc, err := o.Cipher.EncryptString(creds.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	accessEnc, err := o.Cipher.EncryptString(creds.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	return o.Store.UpdateAccountTokens(ctx, o.AccountID, refreshEnc, accessEnc, creds.ExpiresAt)
}
