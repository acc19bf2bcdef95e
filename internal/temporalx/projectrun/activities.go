package projectrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/roomforge-backend/internal/chathistory"
	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/observability"
	"github.com/yungbote/roomforge-backend/internal/platform/dbctx"
	"github.com/yungbote/roomforge-backend/internal/platform/gcp"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
	"github.com/yungbote/roomforge-backend/internal/providers"
)

// RecordStore is the part of the project index the worker writes.
type RecordStore interface {
	Upsert(dbc dbctx.Context, rec *project.ProjectRecord) error
	Delete(dbc dbctx.Context, id string) error
}

const (
	maxChatMessages  = 64
	maxShoppingItems = 12
	heartbeatEvery   = 10 * time.Second
)

type Activities struct {
	Log       *logger.Logger
	Bucket    gcp.BucketService
	Chat      chathistory.Store
	Providers providers.Set
	Records   RecordStore
}

func (a *Activities) validate() error {
	if a == nil || a.Bucket == nil || a.Chat == nil || a.Records == nil {
		return fmt.Errorf("projectrun: activities not configured")
	}
	return a.Providers.Validate()
}

// run wraps an activity body with metrics, logging and error classification.
func (a *Activities) run(ctx context.Context, kind project.ActivityKind, projectID string, body func() error) error {
	start := time.Now()
	if err := a.validate(); err != nil {
		return applicationError(&providers.Error{Kind: providers.KindInvalidInput, Message: err.Error()})
	}
	err := body()
	status := "ok"
	if err != nil {
		status = string(providers.KindOf(err))
		activity.GetLogger(ctx).Warn("Project activity failed",
			"activity", kind, "project_id", projectID, "attempt", activity.GetInfo(ctx).Attempt, "error", err)
	}
	observability.Current().ObserveActivity(string(kind), status, time.Since(start))
	return applicationError(err)
}

func (a *Activities) ValidatePhoto(ctx context.Context, in PhotoInput) (project.PhotoCheck, error) {
	var out project.PhotoCheck
	err := a.run(ctx, project.ActivityValidatePhoto, in.ProjectID, func() error {
		if !project.OwnsKey(in.ProjectID, in.Photo.StorageKey) {
			return providers.Errorf(providers.KindInvalidInput, "photo key %s is outside the project", in.Photo.StorageKey)
		}
		img, err := a.download(ctx, in.Photo.StorageKey)
		if err != nil {
			if errors.Is(err, gcp.ErrObjectNotFound) {
				out = project.PhotoCheck{Accepted: false, Reason: "photo was not uploaded"}
				return nil
			}
			return err
		}
		out, err = a.Providers.Photos.Validate(ctx, providers.PhotoRequest{ProjectID: in.ProjectID, Type: in.Photo.Type, Photo: img})
		return err
	})
	return out, err
}

func (a *Activities) GenerateDesigns(ctx context.Context, in GenerateInput) ([]project.DesignOption, error) {
	var out []project.DesignOption
	err := a.run(ctx, project.ActivityGenerateDesigns, in.ProjectID, func() error {
		stop := startHeartbeat(ctx)
		defer stop()

		req := providers.GenerateRequest{ProjectID: in.ProjectID, Brief: in.Brief, Count: in.Count}
		if in.Scan != nil {
			dims := in.Scan.Dimensions
			req.Dimensions = &dims
		}
		images, err := a.downloadPhotos(ctx, in.Photos)
		if err != nil {
			return err
		}
		for i, ph := range in.Photos {
			switch ph.Type {
			case project.PhotoTypeRoom:
				req.RoomPhotos = append(req.RoomPhotos, images[i])
			case project.PhotoTypeInspiration:
				req.Inspiration = append(req.Inspiration, images[i])
			}
			if ph.Note != "" {
				req.Notes = append(req.Notes, ph.Note)
			}
		}

		designs, err := a.Providers.Studio.Generate(ctx, req)
		if err != nil {
			return err
		}
		batch := uuid.NewString()[:8]
		for i, d := range designs {
			if len(d.Image.Data) == 0 {
				continue
			}
			key := project.BlobKey(in.ProjectID, project.BlobOptions, fmt.Sprintf("%s-%d%s", batch, i, extFor(d.Image.ContentType)))
			if err := a.Bucket.Upload(ctx, key, bytes.NewReader(d.Image.Data), d.Image.ContentType); err != nil {
				return err
			}
			out = append(out, project.DesignOption{ImageKey: key, Caption: d.Caption})
			activity.RecordHeartbeat(ctx, i)
		}
		return nil
	})
	return out, err
}

// EditImage returns the storage key of the revised image.
func (a *Activities) EditImage(ctx context.Context, in EditInput) (string, error) {
	var out string
	err := a.run(ctx, project.ActivityEditImage, in.ProjectID, func() error {
		stop := startHeartbeat(ctx)
		defer stop()

		base, err := a.download(ctx, in.Revision.BaseImage)
		if err != nil {
			return err
		}
		img, err := a.Providers.Studio.Edit(ctx, providers.EditRequest{
			ProjectID:    in.ProjectID,
			Base:         base,
			Type:         in.Revision.Type,
			Instructions: in.Revision.Instructions,
			Annotations:  in.Revision.Annotations,
			Brief:        in.Brief,
		})
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%02d-%s%s", in.Number, uuid.NewString()[:8], extFor(img.ContentType))
		key := project.BlobKey(in.ProjectID, project.BlobRevisions, name)
		if err := a.Bucket.Upload(ctx, key, bytes.NewReader(img.Data), img.ContentType); err != nil {
			return err
		}
		out = key
		return nil
	})
	return out, err
}

// IntakeTurn runs one assistant turn. The transcript is appended only after the
// agent answered, so a retried attempt never records the user message twice.
func (a *Activities) IntakeTurn(ctx context.Context, in IntakeInput) (project.IntakeTurnResult, error) {
	var out project.IntakeTurnResult
	err := a.run(ctx, project.ActivityIntakeTurn, in.ProjectID, func() error {
		if in.ChatKey == "" {
			return providers.Errorf(providers.KindInvalidInput, "intake has no chat history key")
		}
		// An opening turn starts a fresh transcript, even after start_over.
		var hist chathistory.History
		if !in.Opening {
			loaded, err := a.Chat.Load(ctx, in.ChatKey)
			if err != nil {
				return err
			}
			hist = loaded
		}
		res, err := a.Providers.Intake.Turn(ctx, providers.TurnRequest{
			ProjectID: in.ProjectID,
			Mode:      in.Mode,
			History:   hist.Messages,
			Message:   in.Message,
			Opening:   in.Opening,
			FinalTurn: in.FinalTurn,
			TurnsLeft: in.TurnsLeft,
			Known:     in.Known,
		})
		if err != nil {
			return err
		}
		if in.FinalTurn && res.DraftBrief == nil {
			return providers.Errorf(providers.KindInvalidInput, "intake agent returned no brief on the final turn")
		}
		if res.DraftBrief != nil {
			if verr := project.ValidateBrief(*res.DraftBrief); verr != nil {
				return providers.Errorf(providers.KindInvalidInput, "intake agent drafted an invalid brief: %v", verr)
			}
		}
		now := time.Now().UTC()
		if !in.Opening {
			hist.Messages = append(hist.Messages, chathistory.Message{Role: chathistory.RoleUser, Text: in.Message, At: now})
		}
		hist.Messages = append(hist.Messages, chathistory.Message{Role: chathistory.RoleAssistant, Text: res.Reply.Text, At: now})
		if err := a.Chat.Save(ctx, in.ChatKey, hist.Trim(maxChatMessages)); err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (a *Activities) BuildShoppingList(ctx context.Context, in ShoppingInput) (project.ShoppingList, error) {
	var out project.ShoppingList
	err := a.run(ctx, project.ActivityBuildShoppingList, in.ProjectID, func() error {
		design, err := a.download(ctx, in.DesignKey)
		if err != nil {
			return err
		}
		list, err := a.Providers.Shopping.Search(ctx, providers.SearchRequest{
			ProjectID:  in.ProjectID,
			Brief:      in.Brief,
			Design:     design,
			Dimensions: in.Dimensions,
			MaxItems:   maxShoppingItems,
		})
		if err != nil {
			return err
		}
		if list.Items == nil {
			list.Items = []project.ShoppingItem{}
		}
		if list.Currency == "" {
			list.Currency = "USD"
		}
		out = list
		return nil
	})
	return out, err
}

// PurgeProject removes every trace of a project outside the workflow. Each step is
// idempotent so the activity can be retried after a partial failure.
func (a *Activities) PurgeProject(ctx context.Context, in PurgeInput) (PurgeResult, error) {
	var out PurgeResult
	err := a.run(ctx, project.ActivityPurgeProject, in.ProjectID, func() error {
		if strings.TrimSpace(in.ProjectID) == "" {
			return providers.Errorf(providers.KindInvalidInput, "purge without project id")
		}
		var (
			mu      sync.Mutex
			deleted int
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var kg errgroup.Group
			kg.SetLimit(8)
			for _, key := range in.Keys {
				key := key
				if !project.OwnsKey(in.ProjectID, key) {
					continue
				}
				kg.Go(func() error {
					if err := a.Bucket.Delete(gctx, key); err != nil {
						return err
					}
					mu.Lock()
					deleted++
					mu.Unlock()
					return nil
				})
			}
			if err := kg.Wait(); err != nil {
				return err
			}
			n, err := a.Bucket.DeletePrefix(gctx, project.Prefix(in.ProjectID))
			mu.Lock()
			deleted += n
			mu.Unlock()
			return err
		})
		if in.ChatKey != "" {
			g.Go(func() error { return a.Chat.Delete(gctx, in.ChatKey) })
		}
		g.Go(func() error { return a.Records.Delete(dbctx.Context{Ctx: gctx}, in.ProjectID) })
		if err := g.Wait(); err != nil {
			return err
		}
		out.Blobs = deleted
		observability.Current().AddPurgedBlobs(deleted)
		activity.GetLogger(ctx).Info("Project purged", "project_id", in.ProjectID, "blobs", deleted)
		return nil
	})
	return out, err
}

// SyncProjectRecord mirrors the committed project into the index row. It runs as a
// local activity after every committed change.
func (a *Activities) SyncProjectRecord(ctx context.Context, in SyncInput) error {
	if a == nil || a.Records == nil {
		return fmt.Errorf("projectrun: record store not configured")
	}
	rec, err := in.Project.Record()
	if err != nil {
		return err
	}
	return a.Records.Upsert(dbctx.Context{Ctx: ctx}, rec)
}

func (a *Activities) download(ctx context.Context, key string) (providers.Image, error) {
	rc, err := a.Bucket.Download(ctx, key)
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			return providers.Image{}, &providers.Error{Kind: providers.KindInvalidInput, Message: "missing blob " + key, Err: err}
		}
		return providers.Image{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return providers.Image{}, err
	}
	return providers.Image{Key: key, ContentType: gcp.ContentTypeForKey(key), Data: data}, nil
}

// downloadPhotos fetches photos concurrently, preserving order.
func (a *Activities) downloadPhotos(ctx context.Context, photos []project.Photo) ([]providers.Image, error) {
	out := make([]providers.Image, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ph := range photos {
		i, ph := i, ph
		g.Go(func() error {
			img, err := a.download(gctx, ph.StorageKey)
			if err != nil {
				return err
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(heartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}

func extFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
