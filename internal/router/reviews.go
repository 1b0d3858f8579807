package router

import (
	"net/http"

	"storefront/internal/middleware"

	"github.com/gin-gonic/gin"
)

func createReview(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ProductID uint   `json:"productId"`
			Rating    int    `json:"rating"`
			Comment   string `json:"comment"`
		}
		if !bind(c, d, &req) {
			return
		}
		r, err := d.Reviews.Create(c.Request.Context(), req.ProductID, middleware.CurrentUser(c), req.Rating, req.Comment)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusCreated, gin.H{"message": "review added", "review": r})
	}
}

func productReviews(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "productId")
		if !valid {
			return
		}
		res, err := d.Reviews.ListForProduct(c.Request.Context(), id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{
			"reviews": res.Reviews,
			"stats": gin.H{
				"totalReviews":       res.TotalReviews,
				"averageRating":      res.AverageRating,
				"ratingDistribution": res.Distribution,
			},
		})
	}
}

func myReviews(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		reviews, err := d.Reviews.ListMine(c.Request.Context(), middleware.CurrentUser(c).ID)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"reviews": reviews})
	}
}

func updateReview(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		var req struct {
			Rating  *int    `json:"rating"`
			Comment *string `json:"comment"`
		}
		if !bind(c, d, &req) {
			return
		}
		r, err := d.Reviews.Update(c.Request.Context(), id, middleware.CurrentUser(c), req.Rating, req.Comment)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"message": "review updated", "review": r})
	}
}

func deleteReview(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := idParam(c, d, "id")
		if !valid {
			return
		}
		if err := d.Reviews.Delete(c.Request.Context(), id, middleware.CurrentUser(c)); err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"message": "review deleted"})
	}
}
