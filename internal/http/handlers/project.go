package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/http/response"
	"github.com/yungbote/roomforge-backend/internal/platform/apierr"
	"github.com/yungbote/roomforge-backend/internal/platform/dbctx"
	"github.com/yungbote/roomforge-backend/internal/services"
)

const (
	MaxPhotoBytes = 15 << 20
	MaxScanBytes  = 5 << 20

	// room for the multipart envelope and the small form fields
	multipartSlack = 1 << 20
	maxJSONBody    = 256 << 10
)

// URLResolver turns a blob key into a URL a client can fetch.
type URLResolver interface {
	PublicURL(key string) string
}

type ProjectHandler struct {
	projects services.ProjectService
	urls     URLResolver
}

// NewProjectHandler builds the handler. urls may be nil, in which case project
// responses carry no image URLs.
func NewProjectHandler(projects services.ProjectService, urls URLResolver) *ProjectHandler {
	return &ProjectHandler{projects: projects, urls: urls}
}

// POST /projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	p, err := h.projects.Create(dbcOf(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondJSON(c, http.StatusCreated, gin.H{"projectId": p.ID, "project": p})
}

// GET /projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, apierr.Unprocessable("invalid_request", errors.New("limit must be a positive integer")))
			return
		}
		limit = min(n, 200)
	}
	rows, err := h.projects.List(dbcOf(c), limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"projects": rows})
}

// GET /projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, err := h.projects.Get(dbcOf(c), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p, "imageUrls": h.imageURLs(p)})
}

// imageURLs maps every design image key of p to its public URL.
func (h *ProjectHandler) imageURLs(p *project.Project) map[string]string {
	out := map[string]string{}
	if h.urls == nil || p == nil {
		return out
	}
	add := func(key string) {
		if key != "" {
			out[key] = h.urls.PublicURL(key)
		}
	}
	for _, o := range p.GeneratedOptions {
		add(o.ImageKey)
	}
	add(p.CurrentImage)
	for _, r := range p.RevisionHistory {
		add(r.BaseImage)
		add(r.RevisedImage)
	}
	return out
}

// DELETE /projects/:id
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if err := h.projects.Delete(dbcOf(c), c.Param("id")); err != nil {
		response.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /projects/:id/photos (multipart: file, type, note)
func (h *ProjectHandler) UploadPhoto(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxPhotoBytes+multipartSlack)
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, formError(err, "photo exceeds 15 MiB"))
		return
	}
	if fh.Size > MaxPhotoBytes {
		response.RespondError(c, apierr.TooLarge("payload_too_large", errors.New("photo exceeds 15 MiB")))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, apierr.Internal(err))
		return
	}
	defer f.Close()

	res, err := h.projects.UploadPhoto(dbcOf(c), c.Param("id"), services.PhotoUpload{
		Type:        project.PhotoType(strings.ToLower(strings.TrimSpace(c.PostForm("type")))),
		Note:        c.PostForm("note"),
		ContentType: fh.Header.Get("Content-Type"),
		Filename:    fh.Filename,
		Body:        f,
	})
	respondSignal(c, res, err)
}

// DELETE /projects/:id/photos/:photoId
func (h *ProjectHandler) RemovePhoto(c *gin.Context) {
	res, err := h.projects.Signal(dbcOf(c), c.Param("id"), project.RemovePhoto{PhotoID: c.Param("photoId")})
	respondSignal(c, res, err)
}

// POST /projects/:id/scan (multipart: file, widthM, lengthM, heightM)
func (h *ProjectHandler) UploadScan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxScanBytes+multipartSlack)
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, formError(err, "scan exceeds 5 MiB"))
		return
	}
	if fh.Size > MaxScanBytes {
		response.RespondError(c, apierr.TooLarge("payload_too_large", errors.New("scan exceeds 5 MiB")))
		return
	}
	var dims project.RoomDimensions
	for field, dst := range map[string]*float64{"widthM": &dims.WidthM, "lengthM": &dims.LengthM, "heightM": &dims.HeightM} {
		v, err := strconv.ParseFloat(strings.TrimSpace(c.PostForm(field)), 64)
		if err != nil {
			response.RespondError(c, apierr.Unprocessable("invalid_request", errors.New(field+" must be a number")))
			return
		}
		*dst = v
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, apierr.Internal(err))
		return
	}
	defer f.Close()

	res, err := h.projects.UploadScan(dbcOf(c), c.Param("id"), services.ScanUpload{
		Dimensions:  dims,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	})
	respondSignal(c, res, err)
}

// POST /projects/:id/photos/confirm
func (h *ProjectHandler) ConfirmPhotos(c *gin.Context) { bindAndSignal[project.ConfirmPhotos](h, c) }

// POST /projects/:id/scan/skip
func (h *ProjectHandler) SkipScan(c *gin.Context) { bindAndSignal[project.SkipScan](h, c) }

// POST /projects/:id/intake/start {mode}
func (h *ProjectHandler) StartIntake(c *gin.Context) { bindAndSignal[project.StartIntake](h, c) }

// POST /projects/:id/intake/message {message}
func (h *ProjectHandler) SendIntakeMessage(c *gin.Context) {
	bindAndSignal[project.SendIntakeMessage](h, c)
}

// POST /projects/:id/intake/confirm {brief?}
func (h *ProjectHandler) ConfirmIntake(c *gin.Context) { bindAndSignal[project.ConfirmIntake](h, c) }

// POST /projects/:id/intake/skip {brief?}
func (h *ProjectHandler) SkipIntake(c *gin.Context) { bindAndSignal[project.SkipIntake](h, c) }

// POST /projects/:id/select {index}
func (h *ProjectHandler) SelectOption(c *gin.Context) { bindAndSignal[project.SelectOption](h, c) }

// POST /projects/:id/iterate/annotate {annotations}
func (h *ProjectHandler) SubmitAnnotationEdit(c *gin.Context) {
	bindAndSignal[project.SubmitAnnotationEdit](h, c)
}

// POST /projects/:id/iterate/feedback {feedback}
func (h *ProjectHandler) SubmitTextFeedback(c *gin.Context) {
	bindAndSignal[project.SubmitTextFeedback](h, c)
}

// POST /projects/:id/approve
func (h *ProjectHandler) Approve(c *gin.Context) { bindAndSignal[project.Approve](h, c) }

// POST /projects/:id/start-over
func (h *ProjectHandler) StartOver(c *gin.Context) { bindAndSignal[project.StartOver](h, c) }

// POST /projects/:id/retry
func (h *ProjectHandler) Retry(c *gin.Context) { bindAndSignal[project.Retry](h, c) }

// bindAndSignal decodes the optional JSON body into the signal payload and delivers it.
func bindAndSignal[T project.Signal](h *ProjectHandler, c *gin.Context) {
	var sig T
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxJSONBody+1))
	if err != nil {
		response.RespondError(c, apierr.Unprocessable("invalid_request", err))
		return
	}
	if len(body) > maxJSONBody {
		response.RespondError(c, apierr.TooLarge("payload_too_large", errors.New("request body too large")))
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &sig); err != nil {
			response.RespondError(c, apierr.Unprocessable("invalid_request", err))
			return
		}
	}
	res, err := h.projects.Signal(dbcOf(c), c.Param("id"), sig)
	respondSignal(c, res, err)
}

func respondSignal(c *gin.Context, res *services.SignalResult, err error) {
	if err != nil {
		response.RespondError(c, err)
		return
	}
	status := http.StatusAccepted
	if res.Outcome == project.OutcomeNoop {
		status = http.StatusOK
	}
	if res.Current != nil {
		response.RespondJSON(c, status, gin.H{"outcome": res.Outcome.String(), "projectId": res.ProjectID, "project": res.Current})
		return
	}
	// Applied signals are only queued; clients read the result from GET /projects/:id.
	response.RespondJSON(c, status, gin.H{"outcome": res.Outcome.String(), "projectId": res.ProjectID})
}

func formError(err error, tooLarge string) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apierr.TooLarge("payload_too_large", errors.New(tooLarge))
	}
	if errors.Is(err, http.ErrMissingFile) {
		return apierr.Unprocessable("invalid_request", errors.New("file is required"))
	}
	return apierr.Unprocessable("invalid_request", err)
}

func dbcOf(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}
