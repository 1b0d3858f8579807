package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func statsOverview(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ov, err := d.Reports.Overview(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"stats": gin.H{
			"totalUsers":       ov.TotalUsers,
			"totalProducts":    ov.TotalProducts,
			"totalOrders":      ov.TotalOrders,
			"totalRevenue":     ov.TotalRevenue.StringFixed(2),
			"totalReviews":     ov.TotalReviews,
			"ordersThisMonth":  ov.OrdersThisMonth,
			"revenueThisMonth": ov.RevenueThisMonth.StringFixed(2),
		}})
	}
}

func salesByDay(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sales, err := d.Reports.SalesByDay(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"sales": sales})
	}
}

func topProducts(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := d.Reports.TopProducts(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"products": products})
	}
}

func recentOrders(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := d.Reports.RecentOrders(c.Request.Context(), queryInt(c, "limit"))
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"orders": orders})
	}
}

func reviewsDistribution(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		dist, err := d.Reports.ReviewDistribution(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"distribution": dist})
	}
}

func stockAlerts(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		alerts, err := d.Reports.StockAlerts(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"alerts": alerts})
	}
}
