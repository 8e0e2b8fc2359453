package signing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/services", h.ListServices)

	services := rg.Group("/services/:service")
	{
		services.POST("/sign", h.Sign)
		services.GET("/documents/:id/status", h.Status)
		services.GET("/documents/:id/download", h.Download)
	}

	signatures := rg.Group("/signatures")
	{
		signatures.GET("/search", h.Search)
		signatures.PUT("/:id/delete", h.Delete)
	}
}

// Sign accepts a multipart upload: the PDF under "file" and a JSON
// array of signers under "signers".
func (h *Handler) Sign(c *gin.Context) {
	if c.Param("service") != ServiceSelfSign {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only the selfsign service accepts direct signing requests"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	var signers []Signer
	if err := json.Unmarshal([]byte(c.PostForm("signers")), &signers); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signers must be a JSON array"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	document, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	artifact, err := h.service.Sign(c.Request.Context(), SigningRequest{
		Document: document,
		Signers:  signers,
		UserID:   c.PostForm("user_id"),
		Filename: file.Filename,
	})
	if err != nil {
		if errors.Is(err, ErrSigningFailed) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, artifact)
}

func (h *Handler) Status(c *gin.Context) {
	records, err := h.service.RefreshStatus(c.Request.Context(), c.Param("service"), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		case errors.Is(err, ErrUnknownService):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document_id": c.Param("id"),
		"service":     c.Param("service"),
		"records":     records,
	})
}

func (h *Handler) Download(c *gin.Context) {
	data, err := h.service.Download(c.Request.Context(), c.Param("service"), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		case errors.Is(err, ErrUnknownService):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+c.Param("id")+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

func (h *Handler) Search(c *gin.Context) {
	records, err := h.service.Search(c.Request.Context(), SearchFilter{
		DocumentID:  c.Query("document_id"),
		SignerEmail: c.Query("signer_email"),
		Status:      CanonicalStatus(c.Query("status")),
		Service:     c.Query("service"),
		UserID:      c.Query("user_id"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

func (h *Handler) Delete(c *gin.Context) {
	err := h.service.Delete(c.Request.Context(), c.Param("id"), c.Query("deleted_by"))
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "signature record not found"})
		case errors.Is(err, ErrAlreadyDeleted):
			c.JSON(http.StatusConflict, gin.H{"error": "signature record already deleted"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) ListServices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": h.service.Services()})
}
