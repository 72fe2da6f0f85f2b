package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/oksasatya/go-user-service/internal/application"
	"github.com/oksasatya/go-user-service/internal/domain/entity"
	"github.com/oksasatya/go-user-service/pkg/apperror"
	"github.com/oksasatya/go-user-service/pkg/helpers"
	"github.com/oksasatya/go-user-service/pkg/response"
	"github.com/oksasatya/go-user-service/pkg/validation"
)

type UserHandler struct {
	Svc    *userapp.Service
	Logger *logrus.Logger
}

func NewUserHandler(svc *userapp.Service, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required,alpha"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,pwd"`
}

type updateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,alpha"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Phone    *string `json:"phone"`
	Password *string `json:"password" binding:"omitempty,pwd"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// toUserResponse drops the password hash.
func toUserResponse(u *entity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.Svc.GetAllUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err, "")
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	response.Success(c, http.StatusOK, out, "users", map[string]any{"count": len(out)})
}

func (h *UserHandler) Get(c *gin.Context) {
	id := c.Param("id")
	u, err := h.Svc.GetUserByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, id)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "user", nil)
}

func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	u, err := h.Svc.CreateUser(c.Request.Context(), userapp.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if errors.Is(err, apperror.ErrConflict) {
		response.Error[any](c, http.StatusBadRequest, "user already exists", apperror.FieldsOf(err))
		return
	}
	if err != nil {
		h.fail(c, err, "")
		return
	}
	response.Success(c, http.StatusCreated, toUserResponse(u), "user created", nil)
}

func (h *UserHandler) Update(c *gin.Context) {
	id := c.Param("id")
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	u, err := h.Svc.UpdateUser(c.Request.Context(), id, userapp.UpdateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err, id)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "user updated", nil)
}

func (h *UserHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	u, err := h.Svc.DeleteUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, id)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "user deleted", nil)
}

// Search queries the search index; it answers with an empty list when search is disabled.
func (h *UserHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{"q": "is required"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil || size < 1 {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{"size": "must be a positive integer"})
		return
	}

	hits, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		h.fail(c, err, "")
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", map[string]any{"count": len(hits)})
}

// fail maps service errors onto the response; 5xx causes are logged, never echoed.
func (h *UserHandler) fail(c *gin.Context, err error, id string) {
	status := apperror.ToHTTPStatus(err)
	switch status {
	case http.StatusNotFound:
		response.Error[any](c, status, "user not found", nil)
	case http.StatusBadRequest:
		response.Error[any](c, status, "invalid payload", apperror.FieldsOf(err))
	case http.StatusConflict:
		// only an update reaches here: an email owned by another user answers 404
		response.Error[any](c, http.StatusNotFound, "email already in use", apperror.FieldsOf(err))
	default:
		fields := logrus.Fields{"request_id": c.GetString("request_id"), "path": c.FullPath()}
		if id != "" {
			fields["user_id"] = id
		}
		helpers.LogError(h.Logger, "user request failed", err, fields)
		response.Error[any](c, http.StatusInternalServerError, "internal server error", nil)
	}
}
