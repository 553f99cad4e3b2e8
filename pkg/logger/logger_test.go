package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/vitals/pkg/logger"
)

func decode(buf *bytes.Buffer) map[string]any {
	var entry map[string]any
	ExpectWithOffset(1, json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
	return entry
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should create a logger from nil config", func() {
			Expect(logger.New(nil)).NotTo(BeNil())
		})

		It("should include source information when asked", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Level: slog.LevelInfo, Output: buf, AddSource: true})
			log.Info("reading stored")
			Expect(decode(buf)).To(HaveKey("source"))
		})

		It("should write structured JSON with custom fields", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Level: slog.LevelInfo, Output: buf})
			log.Info("reading stored", "device_id", "device-001", "hr", 72)

			entry := decode(buf)
			Expect(entry).To(HaveKey("time"))
			Expect(entry).To(HaveKeyWithValue("level", "INFO"))
			Expect(entry).To(HaveKeyWithValue("msg", "reading stored"))
			Expect(entry).To(HaveKeyWithValue("device_id", "device-001"))
			Expect(entry).To(HaveKeyWithValue("hr", float64(72)))
		})
	})

	Describe("Open", func() {
		It("should return a no-op closer without a file", func() {
			log, closer := logger.Open(&logger.Config{Output: &bytes.Buffer{}})
			Expect(log).NotTo(BeNil())
			Expect(closer.Close()).To(Succeed())
		})

		It("should write to both the output and the rotated file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "logs", "vitals.log")
			buf := &bytes.Buffer{}
			log, closer := logger.Open(&logger.Config{
				Level:  slog.LevelInfo,
				Output: buf,
				File:   logger.DefaultFileConfig(path),
			})
			log.Warn("cache unavailable", "error", "dial tcp: connection refused")
			Expect(closer.Close()).To(Succeed())

			Expect(buf.String()).To(ContainSubstring("cache unavailable"))
			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(buf.String()))
		})

		It("should ignore a file config without a path", func() {
			buf := &bytes.Buffer{}
			log, closer := logger.Open(&logger.Config{Output: buf, File: &logger.FileConfig{}})
			log.Info("hello")
			Expect(closer.Close()).To(Succeed())
			Expect(buf.Len()).To(BeNumerically(">", 0))
		})
	})

	Describe("DefaultFileConfig", func() {
		It("should rotate small compressed files", func() {
			cfg := logger.DefaultFileConfig("/var/log/vitals.log")
			Expect(cfg.Path).To(Equal("/var/log/vitals.log"))
			Expect(cfg.MaxSizeMB).To(Equal(5))
			Expect(cfg.MaxBackups).To(Equal(3))
			Expect(cfg.MaxAgeDays).To(Equal(28))
			Expect(cfg.Compress).To(BeTrue())
		})
	})

	Describe("ParseLevel", func() {
		DescribeTable("should parse level strings correctly",
			func(input string, expected slog.Level) {
				Expect(logger.ParseLevel(input)).To(Equal(expected))
			},
			Entry("debug", "debug", slog.LevelDebug),
			Entry("info", "info", slog.LevelInfo),
			Entry("warn", "warn", slog.LevelWarn),
			Entry("warning", "warning", slog.LevelWarn),
			Entry("error", "error", slog.LevelError),
			Entry("upper case", "DEBUG", slog.LevelDebug),
			Entry("padded", " warn ", slog.LevelWarn),
			Entry("invalid defaults to info", "invalid", slog.LevelInfo),
			Entry("empty string defaults to info", "", slog.LevelInfo),
		)
	})

	Describe("Logger Levels", func() {
		DescribeTable("should respect log level filtering",
			func(level slog.Level, logFunc func(*slog.Logger), shouldAppear bool) {
				buf := &bytes.Buffer{}
				logFunc(logger.New(&logger.Config{Level: level, Output: buf}))
				Expect(len(strings.TrimSpace(buf.String())) > 0).To(Equal(shouldAppear))
			},
			Entry("debug logged when level is debug",
				slog.LevelDebug, func(l *slog.Logger) { l.Debug("debug message") }, true),
			Entry("debug not logged when level is info",
				slog.LevelInfo, func(l *slog.Logger) { l.Debug("debug message") }, false),
			Entry("warn logged when level is info",
				slog.LevelInfo, func(l *slog.Logger) { l.Warn("warn message") }, true),
			Entry("info not logged when level is error",
				slog.LevelError, func(l *slog.Logger) { l.Info("info message") }, false),
		)
	})

	Describe("WithContext", func() {
		It("should add context fields to log messages", func() {
			buf := &bytes.Buffer{}
			log := logger.WithContext(logger.New(&logger.Config{Output: buf}),
				slog.String("component", "ingest"),
				slog.String("device_id", "device-001"),
			)
			log.Info("reading stored")

			entry := decode(buf)
			Expect(entry).To(HaveKeyWithValue("component", "ingest"))
			Expect(entry).To(HaveKeyWithValue("device_id", "device-001"))
		})
	})

	Describe("DefaultConfig", func() {
		It("should log at info without source or file", func() {
			cfg := logger.DefaultConfig()
			Expect(cfg.Level).To(Equal(slog.LevelInfo))
			Expect(cfg.AddSource).To(BeFalse())
			Expect(cfg.File).To(BeNil())
		})
	})
})
