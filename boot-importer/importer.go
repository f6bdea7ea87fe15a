package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"kcibuild/shared/kci"
	"kcibuild/shared/message"
	"kcibuild/shared/model"
)

// bootMeta mirrors a boot-<board>.json report a lab drops into its
// directory under the build directory.
type bootMeta struct {
	Board         string  `json:"board"`
	Job           string  `json:"job"`
	Kernel        string  `json:"kernel"`
	Arch          string  `json:"arch"`
	Defconfig     string  `json:"defconfig"`
	DefconfigFull string  `json:"defconfig_full"`
	LabName       string  `json:"lab_name"`
	BootResult    string  `json:"boot_result"`
	BootLog       string  `json:"boot_log"`
	BootTime      float64 `json:"boot_time"`
	Warnings      int     `json:"boot_warnings"`
}

// statusPublisher is what the importer needs from the Kafka producer.
type statusPublisher interface {
	SendMessage(topic string, key string, value interface{}) error
}

// Importer walks the lab directories of every build of a job/kernel pair
// and turns the boot reports it finds into boot documents.
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

// ImportBoots imports all boot reports found for a job/kernel pair. When
// the message names a lab, only that lab's directories are scanned.
func (imp *Importer) ImportBoots(ctx context.Context, importMsg message.BootImportMessage) error {
	job := importMsg.Job
	kernel := importMsg.Kernel

	if kci.IsHidden(job) || kci.IsHidden(kernel) {
		return fmt.Errorf("job or kernel name cannot start with a dot: %s-%s", job, kernel)
	}

	log.Printf("🔄 Importing boot reports for %s-%s", job, kernel)

	kernelDir := filepath.Join(imp.basePath, job, kernel)
	entries, err := os.ReadDir(kernelDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("⚠️ No artifacts for %s-%s yet", job, kernel)
			return nil
		}
		return err
	}

	imported := 0
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || kci.IsHidden(name) || kci.IsLabDir(name) {
			continue
		}

		n, err := imp.scanBuildDir(ctx, filepath.Join(kernelDir, name), importMsg)
		if err != nil {
			log.Printf("⚠️ Skipping build directory %s: %v", name, err)
			continue
		}
		imported += n
	}

	log.Printf("✅ Imported %d boot reports for %s-%s", imported, job, kernel)

	trigger := message.ReportTriggerMessage{
		ImportID:    importMsg.ID,
		Job:         job,
		Kernel:      kernel,
		Status:      model.PassStatus,
		Boots:       imported,
		CompletedAt: time.Now(),
	}
	return imp.publisher.SendMessage(message.TopicReportTriggers, importMsg.ID, trigger)
}

// scanBuildDir globs the boot reports inside the lab directories of one
// build directory.
func (imp *Importer) scanBuildDir(ctx context.Context, buildDir string, importMsg message.BootImportMessage) (int, error) {
	entries, err := os.ReadDir(buildDir)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, entry := range entries {
		labName := entry.Name()
		if !entry.IsDir() || !kci.IsLabDir(labName) {
			continue
		}
		if importMsg.LabName != "" && labName != importMsg.LabName {
			continue
		}

		reports, err := filepath.Glob(
			filepath.Join(buildDir, labName, kci.BootReportPattern))
		if err != nil {
			return imported, err
		}

		for _, report := range reports {
			if err := imp.importReport(ctx, report, labName, importMsg); err != nil {
				log.Printf("⚠️ Skipping boot report %s: %v", report, err)
				continue
			}
			imported++
		}
	}

	return imported, nil
}

// importReport parses one boot report file and upserts its boot document.
func (imp *Importer) importReport(ctx context.Context, reportPath, labName string, importMsg message.BootImportMessage) error {
	raw, err := os.ReadFile(reportPath)
	if err != nil {
		return err
	}

	var meta bootMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("parsing %s: %w", reportPath, err)
	}

	board := meta.Board
	if board == "" {
		// Fall back to the report file name: boot-<board>.json.
		base := filepath.Base(reportPath)
		board = strings.TrimSuffix(strings.TrimPrefix(base, "boot-"), ".json")
	}
	if board == "" {
		return fmt.Errorf("no board name in %s", reportPath)
	}

	job := meta.Job
	if job == "" {
		job = importMsg.Job
	}
	kernel := meta.Kernel
	if kernel == "" {
		kernel = importMsg.Kernel
	}
	if meta.LabName != "" {
		labName = meta.LabName
	}
	status := meta.BootResult
	if status == "" {
		status = model.UnknownStatus
	}
	defconfigFull := meta.DefconfigFull
	if defconfigFull == "" {
		defconfigFull = meta.Defconfig
	}

	boot := &model.Boot{
		Board:         board,
		Job:           job,
		Kernel:        kernel,
		Arch:          meta.Arch,
		DefconfigFull: defconfigFull,
		LabName:       labName,
		Status:        status,
		BootLog:       meta.BootLog,
		BootTime:      meta.BootTime,
		Warnings:      meta.Warnings,
		CreatedAt:     time.Now(),
	}

	// Tie the boot to its build document when one was already imported.
	indexKey := fmt.Sprintf("build:index:%s:%s:%s:%s",
		job, kernel, defconfigFull, meta.Arch)
	if buildID, err := imp.redis.Get(ctx, indexKey).Result(); err == nil {
		boot.BuildID = buildID
	}

	return imp.storeBoot(ctx, boot)
}

// storeBoot upserts a boot document, keeping the previous document ID and
// creation date on re-import.
func (imp *Importer) storeBoot(ctx context.Context, boot *model.Boot) error {
	indexKey := fmt.Sprintf("boot:index:%s:%s:%s:%s:%s",
		boot.Job, boot.Kernel, boot.DefconfigFull, boot.LabName, boot.Board)

	prevID, err := imp.redis.Get(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if prevID != "" {
		boot.ID = prevID
		prevJSON, err := imp.redis.Get(ctx, "boot:"+prevID).Result()
		if err == nil {
			var prev model.Boot
			if err := json.Unmarshal([]byte(prevJSON), &prev); err == nil {
				boot.CreatedAt = prev.CreatedAt
			}
		}
	} else {
		boot.ID = uuid.New().String()
	}
	boot.UpdatedAt = time.Now()

	bootJSON, err := json.Marshal(boot)
	if err != nil {
		return err
	}

	pipe := imp.redis.TxPipeline()
	pipe.Set(ctx, "boot:"+boot.ID, bootJSON, 0)
	pipe.Set(ctx, indexKey, boot.ID, 0)
	pipe.ZAdd(ctx, "boots:by_date", &redis.Z{
		Score:  float64(boot.CreatedAt.Unix()),
		Member: boot.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}
