package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/roomforge-backend/internal/data/repos"
	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/observability"
	"github.com/yungbote/roomforge-backend/internal/platform/apierr"
	"github.com/yungbote/roomforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/roomforge-backend/internal/platform/dbctx"
	"github.com/yungbote/roomforge-backend/internal/platform/gcp"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
)

// ProjectEngine is the workflow side of a project; projectrun.Engine implements it.
type ProjectEngine interface {
	Start(ctx context.Context, p project.Project) error
	Snapshot(ctx context.Context, id string) (project.Project, error)
	Signal(ctx context.Context, id string, sig project.Signal) error
}

// SignalResult is how the gateway answers a signal. An applied signal has only been
// handed to the workflow, so Current is set for no-ops alone and holds the committed
// snapshot.
type SignalResult struct {
	Outcome   project.Outcome
	ProjectID string
	Current   *project.Project
}

type PhotoUpload struct {
	Type        project.PhotoType
	Note        string
	ContentType string
	Filename    string
	Body        io.Reader
}

type ScanUpload struct {
	Dimensions  project.RoomDimensions
	ContentType string
	Body        io.Reader
}

type ProjectService interface {
	Create(dbc dbctx.Context) (*project.Project, error)
	Get(dbc dbctx.Context, id string) (*project.Project, error)
	List(dbc dbctx.Context, limit int) ([]*project.ProjectRecord, error)
	Signal(dbc dbctx.Context, id string, sig project.Signal) (*SignalResult, error)
	UploadPhoto(dbc dbctx.Context, id string, up PhotoUpload) (*SignalResult, error)
	UploadScan(dbc dbctx.Context, id string, up ScanUpload) (*SignalResult, error)
	Delete(dbc dbctx.Context, id string) error
}

type projectService struct {
	log     *logger.Logger
	records repos.ProjectRecordRepo
	engine  ProjectEngine
	bucket  gcp.BucketService
	now     func() time.Time
}

func NewProjectService(baseLog *logger.Logger, records repos.ProjectRecordRepo, engine ProjectEngine, bucket gcp.BucketService) ProjectService {
	return &projectService{
		log:     baseLog.With("service", "ProjectService"),
		records: records,
		engine:  engine,
		bucket:  bucket,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create writes the index row first so the project is visible to ownership checks
// before its workflow can sync.
func (s *projectService) Create(dbc dbctx.Context) (*project.Project, error) {
	ctx := ctxOf(dbc)
	p := project.New(uuid.NewString(), ctxutil.Owner(ctx), s.now())
	rec, err := p.Record()
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if err := s.records.Create(dbc, rec); err != nil {
		return nil, apierr.Internal(fmt.Errorf("create project record: %w", err))
	}
	if err := s.engine.Start(ctx, p); err != nil {
		if derr := s.records.Delete(dbc, p.ID); derr != nil {
			s.log.Warn("Failed to roll back project record", "project_id", p.ID, "error", derr)
		}
		return nil, apierr.Internal(err)
	}
	s.log.Info("Project created", "project_id", p.ID, "owner_id", p.OwnerID)
	return &p, nil
}

func (s *projectService) Get(dbc dbctx.Context, id string) (*project.Project, error) {
	if _, err := s.authorize(dbc, id); err != nil {
		return nil, err
	}
	p, err := s.engine.Snapshot(ctxOf(dbc), id)
	if err != nil {
		return nil, mapProjectErr(err)
	}
	return &p, nil
}

func (s *projectService) List(dbc dbctx.Context, limit int) ([]*project.ProjectRecord, error) {
	owner := ctxutil.Owner(ctxOf(dbc))
	if owner == "" {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("listing projects requires an authenticated owner"))
	}
	rows, err := s.records.ListByOwner(dbc, owner, limit)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return rows, nil
}

// Signal pre-evaluates sig against the current snapshot with the workflow's own rules
// and delivers it unless the workflow would refuse it outright.
func (s *projectService) Signal(dbc dbctx.Context, id string, sig project.Signal) (*SignalResult, error) {
	cur, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	return s.deliver(dbc, *cur, sig, nil)
}

func (s *projectService) UploadPhoto(dbc dbctx.Context, id string, up PhotoUpload) (*SignalResult, error) {
	cur, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	photoID := uuid.NewString()
	ext := blobExt(up.Filename, up.ContentType, ".jpg")
	sig := project.UploadPhoto{Photo: project.Photo{
		ID:         photoID,
		StorageKey: project.BlobKey(id, project.BlobPhotos, photoID+ext),
		Type:       up.Type,
		Note:       strings.TrimSpace(up.Note),
	}}
	store := func(ctx context.Context) error {
		return s.bucket.Upload(ctx, sig.Photo.StorageKey, up.Body, up.ContentType)
	}
	return s.deliver(dbc, *cur, sig, store)
}

func (s *projectService) UploadScan(dbc dbctx.Context, id string, up ScanUpload) (*SignalResult, error) {
	cur, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	sig := project.UploadScan{Scan: project.ScanData{
		StorageKey: project.BlobKey(id, project.BlobScan, "room.usdz"),
		Dimensions: up.Dimensions,
	}}
	store := func(ctx context.Context) error {
		return s.bucket.Upload(ctx, sig.Scan.StorageKey, up.Body, up.ContentType)
	}
	return s.deliver(dbc, *cur, sig, store)
}

func (s *projectService) Delete(dbc dbctx.Context, id string) error {
	if _, err := s.authorize(dbc, id); err != nil {
		return err
	}
	if err := s.engine.Signal(ctxOf(dbc), id, project.Delete{}); err != nil {
		return mapProjectErr(err)
	}
	observability.Current().IncSignal(string(project.SignalDelete), project.OutcomeDeleted.String())
	s.log.Info("Project delete requested", "project_id", id)
	return nil
}

// deliver applies the gateway half of the signal contract. store, when set, runs
// only for signals that will be applied, before the signal is sent.
func (s *projectService) deliver(dbc dbctx.Context, cur project.Project, sig project.Signal, store func(context.Context) error) (*SignalResult, error) {
	ctx := ctxOf(dbc)
	_, eff := project.Apply(cur, sig, s.now())
	observability.Current().IncSignal(string(sig.Type()), eff.Outcome.String())

	switch eff.Outcome {
	case project.OutcomeNoop:
		return &SignalResult{Outcome: eff.Outcome, ProjectID: cur.ID, Current: &cur}, nil
	case project.OutcomeBusy:
		return nil, fromProjectError(http.StatusConflict, eff.Err).AsRetryable()
	case project.OutcomeRejected, project.OutcomeAbsorbed:
		return nil, fromProjectError(http.StatusConflict, eff.Err)
	case project.OutcomeInvalid:
		// Delivered so the workflow records the error on the project.
		if err := s.engine.Signal(ctx, cur.ID, sig); err != nil {
			return nil, mapProjectErr(err)
		}
		return nil, fromProjectError(http.StatusUnprocessableEntity, eff.Err)
	}

	if store != nil {
		if err := store(ctx); err != nil {
			return nil, apierr.Internal(fmt.Errorf("store upload: %w", err))
		}
	}
	if err := s.engine.Signal(ctx, cur.ID, sig); err != nil {
		return nil, mapProjectErr(err)
	}
	s.log.Debug("Signal delivered", "project_id", cur.ID, "signal", sig.Type(), "outcome", eff.Outcome.String())
	return &SignalResult{Outcome: eff.Outcome, ProjectID: cur.ID}, nil
}

// authorize loads the index row and checks that the caller owns it. Foreign projects
// look missing.
func (s *projectService) authorize(dbc dbctx.Context, id string) (*project.ProjectRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierr.NotFound("project_not_found", project.ErrNotFound)
	}
	rec, err := s.records.Get(dbc, id)
	if err != nil {
		return nil, mapProjectErr(err)
	}
	owner := ctxutil.Owner(ctxOf(dbc))
	if rec.OwnerID != "" && owner != rec.OwnerID {
		return nil, apierr.NotFound("project_not_found", project.ErrNotOwner)
	}
	return rec, nil
}

func mapProjectErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, project.ErrNotFound), errors.Is(err, project.ErrNotOwner):
		return apierr.NotFound("project_not_found", err)
	default:
		return apierr.From(err)
	}
}

func fromProjectError(status int, perr *project.ProjectError) *apierr.Error {
	if perr == nil {
		return apierr.New(status, "signal_refused", errors.New("signal refused"))
	}
	e := apierr.New(status, perr.Code, errors.New(perr.Message))
	e.Retryable = perr.Retryable
	if perr.Activity != "" {
		e = e.WithDetail("activity=" + string(perr.Activity))
	}
	return e
}

func ctxOf(dbc dbctx.Context) context.Context {
	if dbc.Ctx == nil {
		return context.Background()
	}
	return dbc.Ctx
}

func blobExt(filename, contentType, def string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	}
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return def
}
