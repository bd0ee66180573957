package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"uploadqueue/internal/agent"
	"uploadqueue/internal/config"
	"uploadqueue/internal/task"
)

func writeConfig(t *testing.T, storage string) (string, config.Config) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	path := filepath.Join(dir, "config.yml")
	body := "data_dir: " + dataDir + "\nstorage: " + storage + "\nlog_level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return path, cfg
}

func seed(t *testing.T, cfg config.Config, titles map[string]time.Time) {
	t.Helper()
	a, err := openApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	defer a.Close()
	for title, at := range titles {
		_, err := a.queue.AddTask(context.Background(), task.CreateInput{
			Title:         title,
			Description:   "Seeded description for " + title,
			Visibility:    task.VisibilityUnlisted,
			ScheduledTime: at,
			SourceURL:     "https://cdn.example.org/seed.mp4",
		})
		if err != nil {
			t.Fatalf("seed %q: %v", title, err)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunThenStatus(t *testing.T) {
	for _, storage := range []string{config.StorageFile, config.StorageSQLite} {
		t.Run(storage, func(t *testing.T) {
			path, cfg := writeConfig(t, storage)
			seed(t, cfg, map[string]time.Time{
				"Due video":    time.Now().Add(-time.Minute),
				"Future video": time.Now().Add(time.Hour),
			})

			out, err := execute(t, "run", "-c", path, "--json")
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			var summary agent.Summary
			if err := json.Unmarshal([]byte(out), &summary); err != nil {
				t.Fatalf("decode summary %q: %v", out, err)
			}
			if summary.Processed != 1 || summary.Succeeded != 1 {
				t.Fatalf("unexpected summary %+v", summary)
			}

			out, err = execute(t, "status", "-c", path, "--json")
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			var view statusView
			if err := json.Unmarshal([]byte(out), &view); err != nil {
				t.Fatalf("decode status %q: %v", out, err)
			}
			if view.State.TotalRuns != 1 || view.State.TotalUploads != 1 || view.State.LastRunStatus != agent.RunSuccess {
				t.Fatalf("unexpected state %+v", view.State)
			}
			statuses := map[string]task.Status{}
			for _, vt := range view.Queue {
				statuses[vt.Title] = vt.Status
			}
			if statuses["Due video"] != task.StatusUploaded || statuses["Future video"] != task.StatusPending {
				t.Fatalf("unexpected statuses %v", statuses)
			}
		})
	}
}

func TestRunWithNothingDue(t *testing.T) {
	path, _ := writeConfig(t, config.StorageFile)
	out, err := execute(t, "run", "-c", path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "No tasks due.") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStatusTable(t *testing.T) {
	path, cfg := writeConfig(t, config.StorageSQLite)
	seed(t, cfg, map[string]time.Time{"Table video": time.Now().Add(time.Hour)})

	out, err := execute(t, "status", "-c", path)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Total runs", "never", "Table video", "pending", "unlisted"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestOpenAppRejectsSecondInstance(t *testing.T) {
	_, cfg := writeConfig(t, config.StorageFile)
	first, err := openApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if _, err := openApp(context.Background(), cfg); !errors.Is(err, errInstanceRunning) {
		t.Fatalf("expected errInstanceRunning, got %v", err)
	}
	first.Close()

	second, err := openApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open after release: %v", err)
	}
	second.Close()
}

func TestStartupMarksInterruptedUploadsFailed(t *testing.T) {
	_, cfg := writeConfig(t, config.StorageSQLite)
	a, err := openApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created, err := a.queue.AddTask(context.Background(), task.CreateInput{
		Title:         "Cut off",
		Description:   "Upload that never finished",
		Visibility:    task.VisibilityPublic,
		ScheduledTime: time.Now().Add(-time.Minute),
		SourceURL:     "https://cdn.example.org/cut.mp4",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := a.queue.Transition(context.Background(), created.ID, task.StatusUploading, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	a.Close()

	reopened, err := openApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, ok := reopened.queue.GetTask(created.ID)
	if !ok || got.Status != task.StatusFailed || got.Error == "" {
		t.Fatalf("expected interrupted task failed, got %+v", got)
	}
}

func TestBuildUploaderRejectsMissingWebhook(t *testing.T) {
	if _, err := buildUploader(config.Uploader{Kind: config.UploaderWebhook}); err == nil {
		t.Fatalf("expected error for webhook without endpoint")
	}
	if up, err := buildUploader(config.Uploader{Kind: config.UploaderSimulated}); err != nil || up == nil {
		t.Fatalf("expected simulated uploader, got %v %v", up, err)
	}
}
