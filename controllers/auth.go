package controllers

import (
	"trainhub_go/middleware"
	"trainhub_go/models"
	"trainhub_go/services"
	"trainhub_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	auth   *services.AuthService
	tokens *services.TokenService
}

func NewAuthController(auth *services.AuthService, tokens *services.TokenService) *AuthController {
	return &AuthController{auth: auth, tokens: tokens}
}

// Register creates an account, its role profile, and signs the user in.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req services.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := ac.auth.Register(c.UserContext(), req)
	if err != nil {
		return err
	}

	middleware.SetIdentity(c, services.Identity{UserID: user.ID, Role: user.Role})
	middleware.LogActivity(c, "CREATE", "users", user.ID, "registered as "+string(user.Role), nil)
	return ac.respondWithToken(c, fiber.StatusCreated, user)
}

// CreateUser is the admin path for staff and student accounts.
func (ac *AuthController) CreateUser(c *fiber.Ctx) error {
	var req services.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := ac.auth.CreateAccount(c.UserContext(), middleware.CurrentIdentity(c), req)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "CREATE", "users", user.ID, "created "+string(user.Role)+" "+user.Email, nil)
	return c.Status(fiber.StatusCreated).JSON(utils.ToProfile(user))
}

// Login authenticates a user and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req services.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := ac.auth.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return ac.respondWithToken(c, fiber.StatusOK, user)
}

// Logout revokes the presented token until it would have expired.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	claims, err := middleware.CurrentClaims(c)
	if err != nil {
		return err
	}
	if err := ac.tokens.Revoke(c.UserContext(), claims); err != nil {
		return err
	}
	logrus.WithField("user_id", claims.UserID).Info("User logged out")
	return c.JSON(fiber.Map{"message": "Logged out successfully."})
}

// Refresh swaps the presented token for a new one and revokes the old.
func (ac *AuthController) Refresh(c *fiber.Ctx) error {
	claims, err := middleware.CurrentClaims(c)
	if err != nil {
		return err
	}
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}
	token, _, err := ac.tokens.Issue(user)
	if err != nil {
		return err
	}
	if err := ac.tokens.Revoke(c.UserContext(), claims); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(ac.tokens.TTL().Seconds()),
	})
}

func (ac *AuthController) Profile(c *fiber.Ctx) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(utils.ToProfile(user))
}

func (ac *AuthController) respondWithToken(c *fiber.Ctx, status int, user *models.User) error {
	token, _, err := ac.tokens.Issue(user)
	if err != nil {
		return err
	}
	return c.Status(status).JSON(utils.TokenResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int64(ac.tokens.TTL().Seconds()),
		User:      utils.ToProfile(user),
	})
}
