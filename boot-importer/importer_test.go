package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcibuild/shared/message"
	"kcibuild/shared/model"
)

// fakePublisher records every message instead of talking to Kafka.
type fakePublisher struct {
	topics   []string
	payloads []interface{}
}

func (f *fakePublisher) SendMessage(topic string, key string, value interface{}) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, value)
	return nil
}

func newTestImporter(t *testing.T) (*Importer, *redis.Client, *fakePublisher, string) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	basePath := t.TempDir()
	publisher := &fakePublisher{}
	return NewImporter(basePath, redisClient, publisher), redisClient, publisher, basePath
}

func writeBootReport(t *testing.T, labDir, fileName string, meta map[string]interface{}) {
	t.Helper()

	require.NoError(t, os.MkdirAll(labDir, 0755))
	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(labDir, fileName), raw, 0644))
}

func storedBoots(t *testing.T, redisClient *redis.Client) []model.Boot {
	t.Helper()

	ctx := context.Background()
	ids, err := redisClient.ZRange(ctx, "boots:by_date", 0, -1).Result()
	require.NoError(t, err)

	boots := make([]model.Boot, 0, len(ids))
	for _, id := range ids {
		raw, err := redisClient.Get(ctx, "boot:"+id).Result()
		require.NoError(t, err)

		var boot model.Boot
		require.NoError(t, json.Unmarshal([]byte(raw), &boot))
		boots = append(boots, boot)
	}
	return boots
}

func TestImportBoots(t *testing.T) {
	importer, redisClient, publisher, basePath := newTestImporter(t)
	buildDir := filepath.Join(basePath, "next", "v5.10", "arm-defconfig+fragA")

	writeBootReport(t, filepath.Join(buildDir, "lab-collabora"), "boot-beaglebone.json",
		map[string]interface{}{
			"board":          "beaglebone",
			"arch":           "arm",
			"defconfig_full": "defconfig+fragA",
			"boot_result":    "PASS",
			"boot_time":      12.4,
		})

	importMsg := message.BootImportMessage{ID: "import-1", Job: "next", Kernel: "v5.10"}
	require.NoError(t, importer.ImportBoots(context.Background(), importMsg))

	boots := storedBoots(t, redisClient)
	require.Len(t, boots, 1)
	assert.Equal(t, "beaglebone", boots[0].Board)
	assert.Equal(t, "lab-collabora", boots[0].LabName)
	assert.Equal(t, "defconfig+fragA", boots[0].DefconfigFull)
	assert.Equal(t, "PASS", boots[0].Status)
	assert.Equal(t, "next", boots[0].Job)

	require.Len(t, publisher.topics, 1)
	assert.Equal(t, message.TopicReportTriggers, publisher.topics[0])
	trigger := publisher.payloads[0].(message.ReportTriggerMessage)
	assert.Equal(t, 1, trigger.Boots)
}

func TestImportBootsOnlyScansLabDirs(t *testing.T) {
	importer, redisClient, _, basePath := newTestImporter(t)
	buildDir := filepath.Join(basePath, "next", "v5.10", "arm-defconfig")

	writeBootReport(t, filepath.Join(buildDir, "lab-baylibre"), "boot-panda.json",
		map[string]interface{}{"board": "panda", "boot_result": "PASS"})
	// Not a lab directory: must be ignored even though it holds a report.
	writeBootReport(t, filepath.Join(buildDir, "dtbs"), "boot-rogue.json",
		map[string]interface{}{"board": "rogue", "boot_result": "PASS"})
	// Non-matching file names inside a lab directory are ignored too.
	writeBootReport(t, filepath.Join(buildDir, "lab-baylibre"), "results.json",
		map[string]interface{}{"board": "other"})

	importMsg := message.BootImportMessage{ID: "import-1", Job: "next", Kernel: "v5.10"}
	require.NoError(t, importer.ImportBoots(context.Background(), importMsg))

	boots := storedBoots(t, redisClient)
	require.Len(t, boots, 1)
	assert.Equal(t, "panda", boots[0].Board)
}

func TestImportBootsRestrictedToOneLab(t *testing.T) {
	importer, redisClient, _, basePath := newTestImporter(t)
	buildDir := filepath.Join(basePath, "next", "v5.10", "arm-defconfig")

	writeBootReport(t, filepath.Join(buildDir, "lab-collabora"), "boot-panda.json",
		map[string]interface{}{"board": "panda", "boot_result": "PASS"})
	writeBootReport(t, filepath.Join(buildDir, "lab-baylibre"), "boot-panda.json",
		map[string]interface{}{"board": "panda", "boot_result": "FAIL"})

	importMsg := message.BootImportMessage{
		ID: "import-1", Job: "next", Kernel: "v5.10", LabName: "lab-baylibre",
	}
	require.NoError(t, importer.ImportBoots(context.Background(), importMsg))

	boots := storedBoots(t, redisClient)
	require.Len(t, boots, 1)
	assert.Equal(t, "lab-baylibre", boots[0].LabName)
	assert.Equal(t, "FAIL", boots[0].Status)
}

func TestImportBootsLinksBuildDocument(t *testing.T) {
	importer, redisClient, _, basePath := newTestImporter(t)
	buildDir := filepath.Join(basePath, "next", "v5.10", "arm-defconfig")

	ctx := context.Background()
	require.NoError(t, redisClient.Set(ctx,
		"build:index:next:v5.10:defconfig:arm", "build-42", 0).Err())

	writeBootReport(t, filepath.Join(buildDir, "lab-collabora"), "boot-panda.json",
		map[string]interface{}{
			"board":       "panda",
			"arch":        "arm",
			"defconfig":   "defconfig",
			"boot_result": "PASS",
		})

	importMsg := message.BootImportMessage{ID: "import-1", Job: "next", Kernel: "v5.10"}
	require.NoError(t, importer.ImportBoots(context.Background(), importMsg))

	boots := storedBoots(t, redisClient)
	require.Len(t, boots, 1)
	assert.Equal(t, "build-42", boots[0].BuildID)
}

func TestImportBootsBoardFromFileName(t *testing.T) {
	importer, redisClient, _, basePath := newTestImporter(t)
	buildDir := filepath.Join(basePath, "next", "v5.10", "arm-defconfig")

	writeBootReport(t, filepath.Join(buildDir, "lab-collabora"), "boot-imx6q-sabrelite.json",
		map[string]interface{}{"boot_result": "PASS"})

	importMsg := message.BootImportMessage{ID: "import-1", Job: "next", Kernel: "v5.10"}
	require.NoError(t, importer.ImportBoots(context.Background(), importMsg))

	boots := storedBoots(t, redisClient)
	require.Len(t, boots, 1)
	assert.Equal(t, "imx6q-sabrelite", boots[0].Board)
}
