package middleware

import (
	"strings"

	"trainhub_go/apperror"
	"trainhub_go/models"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

const (
	localIdentity = "identity"
	localClaims   = "claims"
	localUser     = "user"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", apperror.Unauthorized("missing authorization header")
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tokenString == authHeader || tokenString == "" {
		return "", apperror.Unauthorized("invalid authorization header format")
	}
	return tokenString, nil
}

// JWTMiddleware validates the bearer token, rejects revoked tokens and
// inactive users, and stores the caller's identity in Locals.
func JWTMiddleware(tokens *services.TokenService, auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := BearerToken(c)
		if err != nil {
			return err
		}
		claims, err := tokens.Parse(c.UserContext(), tokenString)
		if err != nil {
			return err
		}
		user, err := auth.ActiveUser(c.UserContext(), claims.UserID)
		if err != nil {
			return err
		}

		// Role comes from the database so a demoted user loses access at once.
		ident := services.Identity{UserID: user.ID, Role: user.Role}
		c.Locals(localUser, user)
		c.Locals(localClaims, claims)
		c.Locals(localIdentity, ident)
		return c.Next()
	}
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, ok := c.Locals(localIdentity).(services.Identity)
		if !ok {
			return apperror.Unauthorized("missing user identity")
		}
		for _, role := range roles {
			if ident.Role == role {
				return c.Next()
			}
		}
		return apperror.Forbidden("insufficient permissions")
	}
}

// RequireManager allows admins and instructors.
func RequireManager() fiber.Handler {
	return RequireRole(models.RoleAdmin, models.RoleInstructor)
}

// CurrentIdentity returns the authenticated caller. The zero Identity
// is returned on public routes.
func CurrentIdentity(c *fiber.Ctx) services.Identity {
	ident, _ := c.Locals(localIdentity).(services.Identity)
	return ident
}

// CurrentUser returns the current authenticated user
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals(localUser).(*models.User)
	if !ok {
		return nil, apperror.Unauthorized("user not found in context")
	}
	return user, nil
}

// CurrentClaims returns the current JWT claims
func CurrentClaims(c *fiber.Ctx) (*services.Claims, error) {
	claims, ok := c.Locals(localClaims).(*services.Claims)
	if !ok {
		return nil, apperror.Unauthorized("claims not found in context")
	}
	return claims, nil
}

// SetIdentity attributes the rest of a public request, such as a fresh
// registration, to ident.
func SetIdentity(c *fiber.Ctx, ident services.Identity) {
	c.Locals(localIdentity, ident)
}
