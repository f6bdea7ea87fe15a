package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"kcibuild/shared/kci"
	"kcibuild/shared/message"
	"kcibuild/shared/model"
)

// buildMeta mirrors the build.json file the build farm writes next to the
// artifacts of every build.
type buildMeta struct {
	Job              string  `json:"job"`
	Kernel           string  `json:"kernel"`
	Arch             string  `json:"arch"`
	Defconfig        string  `json:"defconfig"`
	DefconfigFull    string  `json:"defconfig_full"`
	KconfigFragments string  `json:"kconfig_fragments"`
	BuildResult      string  `json:"build_result"`
	BuildErrors      int     `json:"build_errors"`
	BuildWarnings    int     `json:"build_warnings"`
	BuildTime        float64 `json:"build_time"`
	BuildLog         string  `json:"build_log"`
	GitBranch        string  `json:"git_branch"`
	GitCommit        string  `json:"git_commit"`
	GitDescribe      string  `json:"git_describe"`
	GitURL           string  `json:"git_url"`
}

// statusPublisher is what the importer needs from the Kafka producer.
type statusPublisher interface {
	SendMessage(topic string, key string, value interface{}) error
}

// Importer scans the artifact tree for one job/kernel pair and turns what it
// finds into build documents.
type Importer struct {
	basePath  string
	redis     *redis.Client
	publisher statusPublisher
}

func NewImporter(basePath string, redisClient *redis.Client, publisher statusPublisher) *Importer {
	return &Importer{
		basePath:  basePath,
		redis:     redisClient,
		publisher: publisher,
	}
}

// ImportJob imports all the builds found under <base>/<job>/<kernel>.
func (imp *Importer) ImportJob(ctx context.Context, importMsg message.BuildImportMessage) error {
	job := importMsg.Job
	kernel := importMsg.Kernel

	// The API validates incoming names, but import requests can also be
	// replayed from the queue; hidden names would escape the tree.
	if kci.IsHidden(job) || kci.IsHidden(kernel) {
		err := fmt.Errorf("job or kernel name cannot start with a dot: %s-%s", job, kernel)
		imp.sendStatus(importMsg, "failed", err.Error())
		return err
	}

	log.Printf("🔄 Importing builds for %s-%s", job, kernel)
	imp.sendStatus(importMsg, "in-progress", "Build import started")

	jobDoc, err := imp.getOrCreateJob(ctx, job, kernel)
	if err != nil {
		imp.sendStatus(importMsg, "failed", err.Error())
		return err
	}

	kernelDir := filepath.Join(imp.basePath, job, kernel)
	builds, jobStatus, err := imp.traverseKernelDir(kernelDir, jobDoc)
	if err != nil {
		imp.sendStatus(importMsg, "failed", err.Error())
		return err
	}

	for _, build := range builds {
		if err := imp.storeBuild(ctx, build); err != nil {
			log.Printf("❌ Failed to store build %s-%s-%s: %v",
				build.Job, build.Kernel, build.DefconfigFull, err)
			imp.sendStatus(importMsg, "failed", err.Error())
			return err
		}
	}

	jobDoc.Status = jobStatus
	jobDoc.UpdatedAt = time.Now()
	// There is no metadata file at the job level; lift the git values from
	// one of the build documents instead.
	for _, build := range builds {
		if build.Job == jobDoc.Job && build.Kernel == jobDoc.Kernel {
			jobDoc.GitBranch = build.GitBranch
			jobDoc.GitCommit = build.GitCommit
			jobDoc.GitDescribe = build.GitDescribe
			jobDoc.GitURL = build.GitURL
			break
		}
	}
	if err := imp.storeJob(ctx, jobDoc); err != nil {
		imp.sendStatus(importMsg, "failed", err.Error())
		return err
	}

	log.Printf("✅ Imported %d builds for %s-%s (job status: %s)",
		len(builds), job, kernel, jobStatus)
	imp.sendStatus(importMsg, "completed",
		fmt.Sprintf("%d builds imported", len(builds)))

	trigger := message.ReportTriggerMessage{
		ImportID:    importMsg.ID,
		JobID:       jobDoc.ID,
		Job:         job,
		Kernel:      kernel,
		Status:      jobStatus,
		Builds:      len(builds),
		CompletedAt: time.Now(),
	}
	return imp.publisher.SendMessage(message.TopicReportTriggers, importMsg.ID, trigger)
}

// traverseKernelDir walks the kernel directory and parses every build
// directory in it. Hidden entries and lab directories (boot reports) are
// skipped. A missing kernel directory is not an error: the farm has not
// uploaded anything yet and the job is still building.
func (imp *Importer) traverseKernelDir(kernelDir string, jobDoc *model.Job) ([]*model.Build, string, error) {
	info, err := os.Stat(kernelDir)
	if err != nil || !info.IsDir() {
		return nil, model.BuildingStatus, nil
	}

	jobStatus := model.UnknownStatus
	if imp.kernelDone(kernelDir) {
		jobStatus = model.PassStatus
	}

	entries, err := os.ReadDir(kernelDir)
	if err != nil {
		return nil, jobStatus, err
	}

	var builds []*model.Build
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || kci.IsHidden(name) || kci.IsLabDir(name) {
			continue
		}

		build, err := imp.parseBuildDir(kernelDir, name, jobDoc)
		if err != nil {
			log.Printf("⚠️ Skipping build directory %s: %v", name, err)
			continue
		}
		if build != nil {
			builds = append(builds, build)
		}
	}

	return builds, jobStatus, nil
}

// kernelDone reports whether the build farm marked the kernel directory as
// finished.
func (imp *Importer) kernelDone(kernelDir string) bool {
	if _, err := os.Stat(filepath.Join(kernelDir, kci.DoneFile)); err == nil {
		return true
	}
	matches, _ := filepath.Glob(filepath.Join(kernelDir, kci.DoneFilePattern))
	return len(matches) > 0
}

// parseBuildDir reads the build.json metadata of one build directory and
// resolves its canonical full configuration name. Returns (nil, nil) when
// the directory has no metadata file at all.
func (imp *Importer) parseBuildDir(kernelDir, dirname string, jobDoc *model.Job) (*model.Build, error) {
	metaPath := filepath.Join(kernelDir, dirname, kci.BuildMetaFile)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var meta buildMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", metaPath, err)
	}
	if meta.Defconfig == "" {
		return nil, fmt.Errorf("missing defconfig in %s", metaPath)
	}

	job := meta.Job
	if job == "" {
		job = jobDoc.Job
	}
	kernel := meta.Kernel
	if kernel == "" {
		kernel = jobDoc.Kernel
	}
	status := meta.BuildResult
	if status == "" {
		status = model.UnknownStatus
	}

	// The directory name is the discovery context: when the metadata has
	// no explicit defconfig_full, it helps cross-check the value derived
	// from the kconfig fragments.
	defconfigFull := kci.DefconfigFull(
		dirname, meta.Defconfig, meta.DefconfigFull, meta.KconfigFragments)

	return &model.Build{
		JobID:            jobDoc.ID,
		Job:              job,
		Kernel:           kernel,
		Arch:             meta.Arch,
		Defconfig:        meta.Defconfig,
		DefconfigFull:    defconfigFull,
		KconfigFragments: meta.KconfigFragments,
		Status:           status,
		Dirname:          filepath.Join(kernelDir, dirname),
		GitBranch:        meta.GitBranch,
		GitCommit:        meta.GitCommit,
		GitDescribe:      meta.GitDescribe,
		GitURL:           meta.GitURL,
		BuildLog:         meta.BuildLog,
		BuildTime:        meta.BuildTime,
		BuildErrors:      meta.BuildErrors,
		BuildWarnings:    meta.BuildWarnings,
		// All builds of an import share the job creation date, no matter
		// when their files landed on disk. Overridden on re-import.
		CreatedAt: jobDoc.CreatedAt,
	}, nil
}

// storeBuild upserts a build document. Re-importing the same build keeps the
// previous document ID and creation date so that nothing referencing the
// build goes stale.
func (imp *Importer) storeBuild(ctx context.Context, build *model.Build) error {
	indexKey := fmt.Sprintf("build:index:%s:%s:%s:%s",
		build.Job, build.Kernel, build.DefconfigFull, build.Arch)

	prevID, err := imp.redis.Get(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if prevID != "" {
		build.ID = prevID
		prevJSON, err := imp.redis.Get(ctx, "build:"+prevID).Result()
		if err == nil {
			var prev model.Build
			if err := json.Unmarshal([]byte(prevJSON), &prev); err == nil {
				build.CreatedAt = prev.CreatedAt
			}
		}
	} else {
		build.ID = uuid.New().String()
	}
	build.UpdatedAt = time.Now()

	buildJSON, err := json.Marshal(build)
	if err != nil {
		return err
	}

	pipe := imp.redis.TxPipeline()
	pipe.Set(ctx, "build:"+build.ID, buildJSON, 0)
	pipe.Set(ctx, indexKey, build.ID, 0)
	pipe.ZAdd(ctx, "builds:by_date", &redis.Z{
		Score:  float64(build.CreatedAt.Unix()),
		Member: build.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// getOrCreateJob loads the job document for a job/kernel pair, creating it
// on first import.
func (imp *Importer) getOrCreateJob(ctx context.Context, job, kernel string) (*model.Job, error) {
	key := "job:" + job + "-" + kernel

	jobJSON, err := imp.redis.Get(ctx, key).Result()
	if err == nil {
		var jobDoc model.Job
		if err := json.Unmarshal([]byte(jobJSON), &jobDoc); err != nil {
			return nil, err
		}
		return &jobDoc, nil
	}
	if err != redis.Nil {
		return nil, err
	}

	jobDoc := &model.Job{
		ID:        uuid.New().String(),
		Job:       job,
		Kernel:    kernel,
		Status:    model.BuildingStatus,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := imp.storeJob(ctx, jobDoc); err != nil {
		return nil, err
	}
	return jobDoc, nil
}

func (imp *Importer) storeJob(ctx context.Context, jobDoc *model.Job) error {
	jobJSON, err := json.Marshal(jobDoc)
	if err != nil {
		return err
	}

	pipe := imp.redis.TxPipeline()
	pipe.Set(ctx, "job:"+jobDoc.Name(), jobJSON, 0)
	pipe.ZAdd(ctx, "jobs:by_date", &redis.Z{
		Score:  float64(jobDoc.CreatedAt.Unix()),
		Member: jobDoc.Name(),
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (imp *Importer) sendStatus(importMsg message.BuildImportMessage, status, text string) {
	statusMsg := message.ImportStatusMessage{
		ImportID:  importMsg.ID,
		Job:       importMsg.Job,
		Kernel:    importMsg.Kernel,
		Status:    status,
		Message:   text,
		UpdatedAt: time.Now(),
	}
	if err := imp.publisher.SendMessage(message.TopicImportStatus, importMsg.ID, statusMsg); err != nil {
		log.Printf("⚠️ Failed to send status update: %v", err)
	}
}
