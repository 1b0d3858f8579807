package router

import (
	"fmt"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/model"

	"github.com/gin-gonic/gin"
)

func getUser(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		detail, err := d.Users.Detail(c.Request.Context(), id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"user": detail})
	}
}

func updateUserRole(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		var req struct {
			Role string `json:"role"`
		}
		if !bind(c, d, &req) {
			return
		}
		u, err := d.Users.UpdateRole(c.Request.Context(), middleware.CurrentUser(c).ID, id, model.Role(req.Role))
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"message": fmt.Sprintf("role changed to %s", u.Role), "user": publicUser(u)})
	}
}

func toggleUserStatus(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		u, err := d.Users.ToggleActive(c.Request.Context(), middleware.CurrentUser(c).ID, id)
		if err != nil {
			fail(c, d, err)
			return
		}
		msg := "user blocked"
		if u.IsActive {
			msg = "user activated"
		}
		body := publicUser(u)
		body["is_active"] = u.IsActive
		ok(c, http.StatusOK, gin.H{"message": msg, "user": body})
	}
}

func deleteUser(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		res, err := d.Users.Delete(c.Request.Context(), middleware.CurrentUser(c).ID, id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{
			"message": fmt.Sprintf("user deleted (%d orders, %d reviews)", res.OrdersDeleted, res.ReviewsDeleted),
			"deleted": res,
		})
	}
}
