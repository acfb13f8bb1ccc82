package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kazz187/issuelab/internal/github"
	"github.com/kazz187/issuelab/pkg/cerr"
)

// Credentials identify the GitHub App that dispatches on behalf of the source repository.
type Credentials struct {
	AppID      string
	PrivateKey string
}

func (c Credentials) validate() error {
	if c.AppID == "" || c.PrivateKey == "" {
		return cerr.NewError(cerr.InvalidArgument, "GitHub App authentication requires GITHUB_APP_ID and GITHUB_APP_PRIVATE_KEY", nil)
	}
	return nil
}

// ErrNoInstallation means the app is not installed on the target repository.
var ErrNoInstallation = errors.New("no installation found")

const appJWTLifetime = 10 * time.Minute

type appAuth struct {
	creds Credentials
	api   *github.API
	now   func() time.Time
}

func (a *appAuth) appJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.creds.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(appJWTLifetime)),
		"iss": a.creds.AppID,
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// installationToken mints a short-lived token scoped to the app's installation on repo.
func (a *appAuth) installationToken(ctx context.Context, repo string) (string, error) {
	appJWT, err := a.appJWT()
	if err != nil {
		return "", err
	}

	var inst struct {
		ID int64 `json:"id"`
	}
	if err := a.api.Do(ctx, http.MethodGet, "/repos/"+repo+"/installation", appJWT, nil, &inst); err != nil {
		var se *github.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w for %s", ErrNoInstallation, repo)
		}
		return "", fmt.Errorf("failed to get installation for %s: %w", repo, err)
	}
	if inst.ID == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoInstallation, repo)
	}

	var tok struct {
		Token string `json:"token"`
	}
	path := fmt.Sprintf("/app/installations/%d/access_tokens", inst.ID)
	if err := a.api.Do(ctx, http.MethodPost, path, appJWT, nil, &tok); err != nil {
		return "", fmt.Errorf("failed to get installation token: %w", err)
	}
	if tok.Token == "" {
		return "", fmt.Errorf("no token in installation token response")
	}
	return tok.Token, nil
}
