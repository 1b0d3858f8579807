package router

import (
	"net/http"

	"storefront/internal/catalog"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/queue"

	"github.com/gin-gonic/gin"
)

func publicUser(u *model.User) gin.H {
	return gin.H{"id": u.ID, "name": u.Name, "email": u.Email, "role": u.Role}
}

func register(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if !bind(c, d, &req) {
			return
		}
		u, token, err := d.Users.Register(c.Request.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			fail(c, d, err)
			return
		}
		publish(c, d, queue.UserRegistered(u))
		ok(c, http.StatusCreated, gin.H{"message": "registration successful", "token": token, "user": publicUser(u)})
	}
}

func login(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if !bind(c, d, &req) {
			return
		}
		u, token, err := d.Users.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"message": "login successful", "token": token, "user": publicUser(u)})
	}
}

func me() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, http.StatusOK, gin.H{"user": middleware.CurrentUser(c)})
	}
}

func createProduct(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req catalog.NewProduct
		if !bind(c, d, &req) {
			return
		}
		p, err := d.Catalog.Create(c.Request.Context(), req)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusCreated, gin.H{"product": p})
	}
}

func getProduct(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		p, err := d.Catalog.Get(c.Request.Context(), id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"product": p})
	}
}
