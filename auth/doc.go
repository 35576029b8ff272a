// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth issues and verifies the bearer tokens that identify users.

# Tokens

Tokens are HS256 JWTs (golang-jwt/jwt/v5) carrying the user ID:

	token, err := auth.IssueToken(userID, cfg.TokenSecret, cfg.TokenTTL, time.Now())
	userID, err := auth.ParseToken(token, cfg.TokenSecret, time.Now())

ParseToken only accepts HS256 tokens from this issuer and returns
ErrTokenExpired or ErrInvalidToken on failure.

# Headers

	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
*/
package auth
