package projectrun

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/providers/mock"
)

func activityEnv(acts *Activities) *testsuite.TestActivityEnvironment {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	for name, fn := range acts.byName() {
		env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: string(name)})
	}
	return env
}

func TestValidatePhotoMissingBlobIsRejected(t *testing.T) {
	acts, _, _ := newActivities(mock.New())
	env := activityEnv(acts)

	val, err := env.ExecuteActivity(string(project.ActivityValidatePhoto), PhotoInput{ProjectID: "p1", Photo: roomPhoto("p1", "a")})
	if err != nil {
		t.Fatalf("ValidatePhoto: %v", err)
	}
	var check project.PhotoCheck
	if err := val.Get(&check); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if check.Accepted || check.Reason == "" {
		t.Fatalf("missing blob should be rejected with a reason: %+v", check)
	}
}

func TestValidatePhotoForeignKeyIsPermanent(t *testing.T) {
	acts, _, _ := newActivities(mock.New())
	env := activityEnv(acts)

	_, err := env.ExecuteActivity(string(project.ActivityValidatePhoto), PhotoInput{ProjectID: "p1", Photo: roomPhoto("p2", "a")})
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || appErr.Type() != "InvalidInput" || !appErr.NonRetryable() {
		t.Fatalf("want non-retryable InvalidInput, got %v", err)
	}
}

func TestGenerateDesignsUploadsUnderProjectPrefix(t *testing.T) {
	acts, bucket, _ := newActivities(mock.New())
	env := activityEnv(acts)
	photos := []project.Photo{roomPhoto("p1", "a"), roomPhoto("p1", "b")}
	for _, ph := range photos {
		put(t, bucket, ph.StorageKey)
	}

	val, err := env.ExecuteActivity(string(project.ActivityGenerateDesigns), GenerateInput{
		ProjectID: "p1",
		Photos:    photos,
		Brief:     &project.DesignBrief{RoomType: "bedroom", Styles: []string{"japandi"}},
		Count:     project.RequestedOptions,
	})
	if err != nil {
		t.Fatalf("GenerateDesigns: %v", err)
	}
	var options []project.DesignOption
	if err := val.Get(&options); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(options) != project.RequestedOptions {
		t.Fatalf("options: got %d", len(options))
	}
	for _, o := range options {
		if !strings.HasPrefix(o.ImageKey, "projects/p1/options/") {
			t.Fatalf("option key outside prefix: %s", o.ImageKey)
		}
		if _, err := bucket.Download(context.Background(), o.ImageKey); err != nil {
			t.Fatalf("option %s not stored: %v", o.ImageKey, err)
		}
	}
	if options[0].Caption != "Option 1: japandi bedroom" {
		t.Fatalf("caption: %q", options[0].Caption)
	}
}

func TestGenerateDesignsWithoutRoomPhotosFails(t *testing.T) {
	acts, _, _ := newActivities(mock.New())
	env := activityEnv(acts)

	_, err := env.ExecuteActivity(string(project.ActivityGenerateDesigns), GenerateInput{ProjectID: "p1", Count: 2})
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || appErr.Type() != "InvalidInput" {
		t.Fatalf("want InvalidInput, got %v", err)
	}
}

func TestEditImageStoresRevision(t *testing.T) {
	acts, bucket, _ := newActivities(mock.New())
	env := activityEnv(acts)
	base := project.BlobKey("p1", project.BlobOptions, "abc-0.png")
	put(t, bucket, base)

	val, err := env.ExecuteActivity(string(project.ActivityEditImage), EditInput{
		ProjectID: "p1",
		Number:    1,
		Revision: project.RevisionRequest{
			Type:         project.RevisionFeedback,
			BaseImage:    base,
			Instructions: []string{"warmer light"},
		},
	})
	if err != nil {
		t.Fatalf("EditImage: %v", err)
	}
	var key string
	if err := val.Get(&key); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.HasPrefix(key, "projects/p1/revisions/01-") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("revision key: %s", key)
	}
}

func TestIntakeTurnKeepsTranscript(t *testing.T) {
	acts, _, _ := newActivities(mock.New())
	env := activityEnv(acts)
	chatKey := project.ChatKey("p1")

	if _, err := env.ExecuteActivity(string(project.ActivityIntakeTurn), IntakeInput{
		ProjectID: "p1", ChatKey: chatKey, Mode: project.IntakeModeQuick, Opening: true, TurnsLeft: 3,
	}); err != nil {
		t.Fatalf("opening turn: %v", err)
	}
	val, err := env.ExecuteActivity(string(project.ActivityIntakeTurn), IntakeInput{
		ProjectID: "p1", ChatKey: chatKey, Mode: project.IntakeModeQuick, Message: "A cosy japandi bedroom", TurnsLeft: 2,
	})
	if err != nil {
		t.Fatalf("message turn: %v", err)
	}
	var res project.IntakeTurnResult
	if err := val.Get(&res); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.DraftBrief == nil || res.DraftBrief.RoomType != "bedroom" {
		t.Fatalf("draft brief: %+v", res.DraftBrief)
	}

	hist, err := acts.Chat.Load(context.Background(), chatKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(hist.Messages) != 3 {
		t.Fatalf("transcript: want 3 messages, got %d", len(hist.Messages))
	}

	// A new opening turn discards the old transcript.
	if _, err := env.ExecuteActivity(string(project.ActivityIntakeTurn), IntakeInput{
		ProjectID: "p1", ChatKey: chatKey, Mode: project.IntakeModeQuick, Opening: true, TurnsLeft: 3,
	}); err != nil {
		t.Fatalf("second opening: %v", err)
	}
	hist, _ = acts.Chat.Load(context.Background(), chatKey)
	if len(hist.Messages) != 1 {
		t.Fatalf("transcript after reopening: want 1 message, got %d", len(hist.Messages))
	}
}

func TestIntakeFinalTurnReturnsBrief(t *testing.T) {
	acts, _, _ := newActivities(mock.New())
	env := activityEnv(acts)

	val, err := env.ExecuteActivity(string(project.ActivityIntakeTurn), IntakeInput{
		ProjectID: "p1", ChatKey: project.ChatKey("p1"), Mode: project.IntakeModeQuick, Message: "something calm", FinalTurn: true,
	})
	if err != nil {
		t.Fatalf("final turn: %v", err)
	}
	var res project.IntakeTurnResult
	_ = val.Get(&res)
	if !res.Done || res.DraftBrief == nil {
		t.Fatalf("final turn must finish with a brief: %+v", res)
	}
}

func TestBuildShoppingList(t *testing.T) {
	acts, bucket, _ := newActivities(mock.New())
	env := activityEnv(acts)
	design := project.BlobKey("p1", project.BlobRevisions, "01-abc.png")
	put(t, bucket, design)

	val, err := env.ExecuteActivity(string(project.ActivityBuildShoppingList), ShoppingInput{
		ProjectID: "p1",
		DesignKey: design,
		Brief:     &project.DesignBrief{RoomType: "bedroom", Styles: []string{"japandi"}, BudgetTier: "low"},
	})
	if err != nil {
		t.Fatalf("BuildShoppingList: %v", err)
	}
	var list project.ShoppingList
	if err := val.Get(&list); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if list.Currency != "USD" || len(list.Items) == 0 || len(list.Items) > maxShoppingItems {
		t.Fatalf("list: %+v", list)
	}
}

func TestPurgeProjectRemovesEverything(t *testing.T) {
	acts, bucket, records := newActivities(mock.New())
	env := activityEnv(acts)
	ctx := context.Background()

	keys := []string{
		project.BlobKey("p1", project.BlobPhotos, "a.jpg"),
		project.BlobKey("p1", project.BlobOptions, "x-0.png"),
	}
	for _, k := range keys {
		put(t, bucket, k)
	}
	put(t, bucket, project.BlobKey("p1", project.BlobRevisions, "orphan.png"))
	put(t, bucket, project.BlobKey("p10", project.BlobPhotos, "keep.jpg"))
	put(t, bucket, project.BlobKey("p2", project.BlobPhotos, "keep.jpg"))
	_ = records.Upsert(dbctxBackground(), &project.ProjectRecord{ID: "p1"})
	_ = acts.Chat.Save(ctx, project.ChatKey("p1"), historyWith("hello"))

	val, err := env.ExecuteActivity(string(project.ActivityPurgeProject), PurgeInput{
		ProjectID: "p1",
		Keys:      append(keys, project.BlobKey("p2", project.BlobPhotos, "keep.jpg")),
		ChatKey:   project.ChatKey("p1"),
	})
	if err != nil {
		t.Fatalf("PurgeProject: %v", err)
	}
	var res PurgeResult
	_ = val.Get(&res)
	if res.Blobs < 3 {
		t.Fatalf("purged blobs: %d", res.Blobs)
	}
	left, _ := bucket.ListKeys(ctx, "projects/p1/")
	if len(left) != 0 {
		t.Fatalf("blobs left under prefix: %v", left)
	}
	if bucket.Len() != 2 {
		t.Fatalf("other projects must be untouched, have %d objects", bucket.Len())
	}
	if _, ok := records.get("p1"); ok {
		t.Fatalf("index row should be deleted")
	}

	// A second purge is a no-op.
	if _, err := env.ExecuteActivity(string(project.ActivityPurgeProject), PurgeInput{ProjectID: "p1", ChatKey: project.ChatKey("p1")}); err != nil {
		t.Fatalf("repeat purge: %v", err)
	}
}

func TestSyncProjectRecord(t *testing.T) {
	acts, _, records := newActivities(mock.New())
	env := activityEnv(acts)

	p := project.New("p1", "owner-1", t0)
	p.Step = project.StepScan
	p.Error = &project.ProjectError{Code: "wrong_step", Category: project.CategoryClientInput}
	if _, err := env.ExecuteActivity(string(project.ActivitySyncProjectRecord), SyncInput{Project: p}); err != nil {
		t.Fatalf("SyncProjectRecord: %v", err)
	}
	rec, ok := records.get("p1")
	if !ok {
		t.Fatalf("record not written")
	}
	if rec.Step != "scan" || rec.OwnerID != "owner-1" || rec.ErrorCode != "wrong_step" || rec.WorkflowID != project.WorkflowID("p1") {
		t.Fatalf("record: %+v", rec)
	}
}
