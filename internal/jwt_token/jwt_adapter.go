package jwttoken

import "context"

// VerifierAdapter exposes the JWT service as the subject verifier the socket
// gate and admin middleware depend on.
type VerifierAdapter struct {
	service *JWTService
}

func NewVerifierAdapter(service *JWTService) *VerifierAdapter {
	return &VerifierAdapter{service: service}
}

// VerifyToken returns the user id the token was issued to.
func (a *VerifierAdapter) VerifyToken(_ context.Context, token string) (string, error) {
	claims, err := a.service.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
