package router

import (
	"net/http"
	"strings"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/order"
	"storefront/internal/queue"

	"github.com/gin-gonic/gin"
)

func createOrder(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateInput
		if !bind(c, d, &req) {
			return
		}
		u := middleware.CurrentUser(c)
		o, err := d.Orders.Create(c.Request.Context(), u.ID, req)
		middleware.RecordOrderOperation("create", err == nil)
		if err != nil {
			fail(c, d, err)
			return
		}
		publish(c, d, queue.OrderCreated(o, u))
		ok(c, http.StatusCreated, gin.H{"message": "order created", "order": o})
	}
}

func myOrders(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := d.Orders.ListForUser(c.Request.Context(), middleware.CurrentUser(c).ID)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"orders": orders})
	}
}

// pendingOrders 默认只看 Pending，可用 ?status=Pending,Shipped 指定集合。
func pendingOrders(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var statuses []model.OrderStatus
		if raw := c.Query("status"); raw != "" {
			for _, s := range strings.Split(raw, ",") {
				st, valid := model.ParseOrderStatus(s)
				if !valid {
					fail(c, d, order.ErrInvalidStatus)
					return
				}
				statuses = append(statuses, st)
			}
		}
		orders, err := d.Orders.ListByStatus(c.Request.Context(), statuses)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
	}
}

func allOrders(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := d.Orders.List(c.Request.Context(), queryInt(c, "page"), queryInt(c, "limit"))
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{
			"orders": page.Orders,
			"pagination": gin.H{
				"total":       page.Total,
				"pages":       page.Pages,
				"currentPage": page.CurrentPage,
				"limit":       page.Limit,
			},
		})
	}
}

func getOrder(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		o, err := d.Orders.Get(c.Request.Context(), id, middleware.CurrentUser(c))
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"order": o})
	}
}

func updateOrderStatus(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if !bind(c, d, &req) {
			return
		}
		o, err := d.Orders.UpdateStatus(c.Request.Context(), id, req.Status)
		middleware.RecordOrderOperation("update_status", err == nil)
		if err != nil {
			fail(c, d, err)
			return
		}
		// 通知需要收件人，重新带上下单人信息
		if full, err := d.Orders.Get(c.Request.Context(), o.ID, middleware.CurrentUser(c)); err == nil {
			o = full
		}
		publish(c, d, queue.OrderStatusChanged(o))
		ok(c, http.StatusOK, gin.H{"message": "order status updated", "order": o})
	}
}

func deleteOrder(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		err := d.Orders.Delete(c.Request.Context(), id)
		middleware.RecordOrderOperation("delete", err == nil)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"message": "order deleted"})
	}
}
