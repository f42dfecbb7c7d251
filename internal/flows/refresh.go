package flows

import (
	"context"

	"github.com/giall/hecate/jwt"
)

// RunRefresh exchanges a Refresh token for a new pair. The old session id is
// replaced by a fresh one in a single compare-and-set, so replaying the old
// token afterwards, or racing it, fails with SessionNotMember.
func RunRefresh(ctx context.Context, refreshToken string, deps Deps) (*TokenPair, error) {
	if err := deps.ready(); err != nil {
		return nil, err
	}

	claims, err := deps.Tokens.Decode(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return nil, deps.decodeError(err)
	}

	next, err := deps.Sessions.Rotate(ctx, claims.Subject, claims.SessionID)
	if err != nil {
		err = deps.sessionError(err)
		if err == deps.Errors.SessionNotMember {
			deps.Log.Warn().Str("account_id", claims.Subject).Msg("refresh with non-member session")
		}
		return nil, err
	}

	pair, err := deps.issuePair(claims.Subject, next)
	if err != nil {
		return nil, err
	}
	deps.Log.Debug().Str("account_id", claims.Subject).Str("session_id", next).Msg("session refreshed")
	return pair, nil
}

// RunLogout removes the session named by a Refresh token. Access tokens
// issued for the session stay valid until they expire.
func RunLogout(ctx context.Context, refreshToken string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}

	claims, err := deps.Tokens.Decode(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return deps.decodeError(err)
	}

	removed, err := deps.Sessions.Remove(ctx, claims.Subject, claims.SessionID)
	if err != nil {
		return deps.sessionError(err)
	}
	if !removed {
		return deps.Errors.SessionNotMember
	}
	deps.Log.Info().Str("account_id", claims.Subject).Str("session_id", claims.SessionID).Msg("logout")
	return nil
}

// RunInvalidateAll clears every session of the account, provided the
// presenting session is itself live.
func RunInvalidateAll(ctx context.Context, refreshToken string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}

	claims, err := deps.Tokens.Decode(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return deps.decodeError(err)
	}

	if err := deps.Sessions.ResetIfMember(ctx, claims.Subject, claims.SessionID); err != nil {
		return deps.sessionError(err)
	}
	deps.Log.Info().Str("account_id", claims.Subject).Msg("all sessions invalidated")
	return nil
}

// RunAuthenticate resolves an Access token to its account id.
func RunAuthenticate(accessToken string, deps Deps) (string, error) {
	if deps.Tokens == nil {
		return "", deps.Errors.EngineNotReady
	}
	claims, err := deps.Tokens.Decode(accessToken, jwt.TypeAccess)
	if err != nil {
		return "", deps.decodeError(err)
	}
	return claims.Subject, nil
}
