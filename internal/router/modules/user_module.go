package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/go-user-service/internal/interface/http"
)

// UserModule serves the user CRUD routes:
// GET /user, GET /user/:id, POST /user, PATCH /user/:id, DELETE /user/:id
// and GET /users/search.
type UserModule struct {
	Handler *handlers.UserHandler
}

func NewUserModule(h *handlers.UserHandler) *UserModule {
	return &UserModule{Handler: h}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	users := rg.Group("/user")
	{
		users.GET("", m.Handler.List)
		users.GET("/:id", m.Handler.Get)
		users.POST("", m.Handler.Create)
		users.PATCH("/:id", m.Handler.Update)
		users.DELETE("/:id", m.Handler.Delete)
	}
	rg.GET("/users/search", m.Handler.Search)
}
