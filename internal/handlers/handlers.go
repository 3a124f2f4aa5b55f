package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"schoollibrary/internal/auth"
	"schoollibrary/internal/backup"
	"schoollibrary/internal/metrics"
	"schoollibrary/internal/models"
	"schoollibrary/internal/services"
)

type LibraryHandler struct {
	svc services.LibraryService
}

// RouterConfig collects what NewRouter needs besides the service.
type RouterConfig struct {
	CORSOrigins []string
	JWTSecret   []byte
	Metrics     *metrics.Metrics
}

// NewRouter builds the engine with CORS, health, metrics and the
// authenticated library routes.
func NewRouter(svc services.LibraryService, cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:  []string{"Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
	}
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/", auth.Middleware(cfg.JWTSecret))
	RegisterRoutes(api, svc)
	return r
}

func RegisterRoutes(r gin.IRoutes, svc services.LibraryService) {
	h := &LibraryHandler{svc: svc}

	r.GET("/snapshot", h.snapshot)
	r.POST("/reload", h.reload)
	r.GET("/dashboard", h.dashboard)

	r.GET("/books", h.listBooks)
	r.POST("/books", h.createBook)
	r.PUT("/books/:id", h.updateBook)
	r.DELETE("/books/:id", h.deleteBook)

	r.GET("/students", h.listStudents)
	r.POST("/students", h.createStudent)
	r.PUT("/students/:id", h.updateStudent)
	r.DELETE("/students/:id", h.deleteStudent)

	r.GET("/loans", h.listLoans)
	r.POST("/loans", h.createLoan)
	r.PUT("/loans/:id", h.editLoan)
	r.POST("/loans/:id/return", h.returnLoan)
	r.DELETE("/loans/:id", h.deleteLoan)

	r.GET("/backup/export", h.exportBackup)
	r.POST("/backup/import", h.importBackup)
	r.POST("/backup/restore", h.restoreBackup)
	r.POST("/backup/archive", h.archiveBackup)
	r.GET("/backup/archives", h.listArchives)
	r.POST("/backup/archives/restore", h.restoreArchive)
}

// respondError is the single place where service errors become responses.
func respondError(c *gin.Context, err error) {
	var storeErr *services.StoreError
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, backup.ErrFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrStudentNotFound),
		errors.Is(err, services.ErrLoanNotFound),
		errors.Is(err, backup.ErrArchiveKey):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrArchiveDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &storeErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable: " + storeErr.Err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ─── Snapshot ─────────────────────────────────────────────────────────────────

func (h *LibraryHandler) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Snapshot())
}

func (h *LibraryHandler) reload(c *gin.Context) {
	if err := h.svc.Reload(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Snapshot())
}

func (h *LibraryHandler) dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Dashboard())
}

// ─── Books ────────────────────────────────────────────────────────────────────

// bookRequest mirrors the book form: barcode and collection name are only
// read when their toggle is on, and are then required.
type bookRequest struct {
	Title           string `json:"title" binding:"required"`
	Author          string `json:"author" binding:"required"`
	PublicationYear int    `json:"publicationYear" binding:"min=0"`
	Publisher       string `json:"publisher"`
	ISBN            string `json:"isbn"`
	HasBarcode      bool   `json:"hasBarcode"`
	Barcode         string `json:"barcode"`
	EditionYear     int    `json:"editionYear" binding:"min=0"`
	Location        string `json:"location"`
	HasCollection   bool   `json:"hasCollection"`
	CollectionName  string `json:"collectionName"`
}

func (req bookRequest) toInput() (services.BookInput, error) {
	in := services.BookInput{
		Title:           req.Title,
		Author:          req.Author,
		PublicationYear: req.PublicationYear,
		Publisher:       req.Publisher,
		ISBN:            req.ISBN,
		EditionYear:     req.EditionYear,
		Location:        req.Location,
	}
	var err error
	if in.Barcode, err = toggled(req.HasBarcode, req.Barcode, "barcode"); err != nil {
		return services.BookInput{}, err
	}
	if in.Collection, err = toggled(req.HasCollection, req.CollectionName, "collectionName"); err != nil {
		return services.BookInput{}, err
	}
	return in, nil
}

func toggled(on bool, value, field string) (models.Optional, error) {
	if !on {
		return models.None(), nil
	}
	opt := models.Some(value)
	if !opt.IsSet() {
		return models.None(), errors.New(field + " is required when its toggle is on")
	}
	return opt, nil
}

func (h *LibraryHandler) bindBook(c *gin.Context) (services.BookInput, bool) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return services.BookInput{}, false
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return services.BookInput{}, false
	}
	return in, true
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListBooks())
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	in, ok := h.bindBook(c)
	if !ok {
		return
	}
	book, err := h.svc.CreateBook(in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	in, ok := h.bindBook(c)
	if !ok {
		return
	}
	book, err := h.svc.UpdateBook(c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	if err := h.svc.DeleteBook(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Students ─────────────────────────────────────────────────────────────────

type studentRequest struct {
	Name  string `json:"name" binding:"required"`
	Class string `json:"class" binding:"required"`
}

func (h *LibraryHandler) listStudents(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListStudents())
}

func (h *LibraryHandler) createStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	student, err := h.svc.CreateStudent(req.Name, req.Class)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, student)
}

func (h *LibraryHandler) updateStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	student, err := h.svc.UpdateStudent(c.Param("id"), req.Name, req.Class)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

func (h *LibraryHandler) deleteStudent(c *gin.Context) {
	if err := h.svc.DeleteStudent(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Loans ────────────────────────────────────────────────────────────────────

type loanRequest struct {
	StudentName  string `json:"studentName" binding:"required"`
	StudentClass string `json:"studentClass" binding:"required"`
	BookID       string `json:"bookId" binding:"required"`
}

func (h *LibraryHandler) listLoans(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListLoans())
}

func (h *LibraryHandler) createLoan(c *gin.Context) {
	var req loanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loan, err := h.svc.CreateLoan(req.StudentName, req.StudentClass, req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func (h *LibraryHandler) editLoan(c *gin.Context) {
	var req loanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loan, err := h.svc.EditLoan(c.Param("id"), req.StudentName, req.StudentClass, req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LibraryHandler) returnLoan(c *gin.Context) {
	loan, err := h.svc.ReturnLoan(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LibraryHandler) deleteLoan(c *gin.Context) {
	if err := h.svc.DeleteLoan(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Backup ───────────────────────────────────────────────────────────────────

func (h *LibraryHandler) exportBackup(c *gin.Context) {
	doc, err := h.svc.ExportBackup()
	if err != nil {
		respondError(c, err)
		return
	}
	name := "library-backup-" + h.svc.Now().Format("2006-01-02") + ".json"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

func (h *LibraryHandler) importBackup(c *gin.Context) {
	doc, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.ImportBackup(doc); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Snapshot())
}

func (h *LibraryHandler) restoreBackup(c *gin.Context) {
	doc, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.RestoreBackup(doc); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Snapshot())
}

func (h *LibraryHandler) archiveBackup(c *gin.Context) {
	key, err := h.svc.ArchiveBackup(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

func (h *LibraryHandler) listArchives(c *gin.Context) {
	entries, err := h.svc.ListArchives(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type restoreArchiveRequest struct {
	Key string `json:"key" binding:"required"`
}

func (h *LibraryHandler) restoreArchive(c *gin.Context) {
	var req restoreArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.RestoreArchive(c.Request.Context(), strings.TrimSpace(req.Key)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Snapshot())
}
