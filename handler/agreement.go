package handler

import (
	"net/http"

	"github.com/Shri1927/freelance-escrow/backend/service"
	"github.com/gin-gonic/gin"
)

type AgreementHandler struct {
	catalog *service.AgreementCatalog
}

func NewAgreementHandler(catalog *service.AgreementCatalog) *AgreementHandler {
	return &AgreementHandler{catalog: catalog}
}

// List returns every agreement template without the full legal text,
// enough to populate a selection UI
func (h *AgreementHandler) List(c *gin.Context) {
	agreements := h.catalog.All()

	result := make([]gin.H, len(agreements))
	for i, a := range agreements {
		result[i] = gin.H{
			"id":      a.ID,
			"title":   a.Title,
			"summary": a.Summary,
		}
	}

	c.JSON(http.StatusOK, gin.H{"agreements": result})
}

// Get returns a single agreement template with its full text
func (h *AgreementHandler) Get(c *gin.Context) {
	agreement, err := h.catalog.Get(c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, agreement)
}
