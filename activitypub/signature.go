package activitypub

import (
	"context"
	"crypto"
	"net/http"
	"strings"

	"github.com/go-fed/httpsig"
	"gorm.io/gorm"

	vcrypto "github.com/vidpod/vidpod/internal/crypto"
	"github.com/vidpod/vidpod/models"
)

// ValidateSignature returns middleware that rejects inbox requests whose
// HTTP signature cannot be verified against the sending actor's public
// key. The key owner is resolved locally first, then discovered and stored
// like any other remote account.
func ValidateSignature(env *models.Env) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verifier, err := httpsig.NewVerifier(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			pubKey, err := publicKeyFor(r.Context(), env, verifier.KeyId())
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// publicKeyFor resolves the account owning keyID to its public key,
// discovering and storing the account when it is not known yet.
func publicKeyFor(ctx context.Context, env *models.Env, keyID string) (crypto.PublicKey, error) {
	actorURL := trimKeyID(keyID)
	account, err := models.NewAccounts(env.DB).FindByURL(actorURL)
	switch {
	case err == gorm.ErrRecordNotFound:
		account, err = discoverAccount(ctx, env, actorURL)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	return vcrypto.ParseRSAPublicKey(account.PublicKey)
}

func discoverAccount(ctx context.Context, env *models.Env, actorURL string) (*models.Account, error) {
	server, err := models.NewAccounts(env.DB).ServerAccount()
	if err != nil {
		return nil, err
	}
	account, err := NewRemoteAccountFetcher(server).FetchURL(ctx, actorURL)
	if err != nil {
		return nil, err
	}
	if err := env.DB.Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// trimKeyID removes the fragment from a key id, leaving the owner's URL.
func trimKeyID(id string) string {
	if i := strings.Index(id, "#"); i != -1 {
		return id[:i]
	}
	return id
}
