package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/replica-failover/pkg/logger"
)

var _ = Describe("Logger", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
	})

	Describe("New", func() {
		DescribeTable("should respect the configured level",
			func(level string, enabled, disabled slog.Level) {
				log := logger.New(buf, level, false, "dev")

				Expect(log.Enabled(context.Background(), enabled)).To(BeTrue())
				Expect(log.Enabled(context.Background(), disabled)).To(BeFalse())
			},
			Entry("info", "info", slog.LevelInfo, slog.LevelDebug),
			Entry("warn", "warn", slog.LevelWarn, slog.LevelInfo),
			Entry("error", "ERROR", slog.LevelError, slog.LevelWarn),
			Entry("invalid falls back to info", "loud", slog.LevelInfo, slog.LevelDebug),
		)

		It("should enable debug", func() {
			log := logger.New(buf, "debug", false, "dev")
			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeTrue())
		})

		It("should write JSON in prod", func() {
			log := logger.New(buf, "info", false, "prod")
			log.Info("Active replica found", slog.String("replica", "http2"))

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record["msg"]).To(Equal("Active replica found"))
			Expect(record["environment"]).To(Equal("prod"))
			Expect(record["replica"]).To(Equal("http2"))
		})

		It("should write text outside prod", func() {
			log := logger.New(buf, "info", false, "dev")
			log.Warn("Replica unavailable, trying next")

			Expect(buf.String()).To(ContainSubstring("level=WARN"))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})

		It("should add the source location when asked", func() {
			log := logger.New(buf, "info", true, "dev")
			log.Info("hello")

			Expect(buf.String()).To(ContainSubstring("source="))
		})

		It("should default to stdout", func() {
			Expect(logger.New(nil, "info", false, "dev")).NotTo(BeNil())
		})
	})
})
