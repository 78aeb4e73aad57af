//go:build integration

package integration

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/fediwatch/mentiond/internal/daemon"
	"github.com/fediwatch/mentiond/internal/domain"
	"github.com/fediwatch/mentiond/internal/infra"
	"github.com/fediwatch/mentiond/internal/plugin"
	"github.com/fediwatch/mentiond/test/fixtures"
)

func mentionAt(id string, createdAt time.Time) domain.Mention {
	return domain.Mention{
		ID:        id,
		StatusID:  "s" + id,
		AuthorID:  "author-" + id,
		Author:    "user" + id,
		Content:   "@bot hello",
		CreatedAt: createdAt,
	}
}

var _ = Describe("Mention Engine", func() {
	var (
		tmpDir    string
		statePath string
		sink      *fixtures.RecordingSink
		logger    *zap.Logger
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		statePath = filepath.Join(tmpDir, "state.json")
		sink = &fixtures.RecordingSink{}
		logger = zap.NewNop()
	})

	newEngine := func(src domain.MentionSource, store domain.DedupStore, plugins ...plugin.Plugin) *daemon.Engine {
		registry, err := plugin.NewRegistry(plugins)
		Expect(err).NotTo(HaveOccurred())
		return daemon.NewEngine(daemon.EngineConfig{
			PollInterval:      20 * time.Millisecond,
			FetchFailureLimit: 3,
			SelfAccountID:     "self-id",
		}, src, store, registry, sink, logger)
	}

	runUntil := func(engine *daemon.Engine, cond func() bool) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- engine.Run(ctx) }()
		Eventually(cond, 3*time.Second, 10*time.Millisecond).Should(BeTrue())
		cancel()
		Eventually(done, 3*time.Second).Should(Receive(BeNil()))
	}

	Describe("deduplication across overlapping polls", func() {
		It("dispatches each unique mention exactly once", func() {
			store, err := infra.OpenStateStore(statePath, time.Hour, logger)
			Expect(err).NotTo(HaveOccurred())

			now := store.InitializedAt().Add(time.Second)
			m1 := mentionAt("101", now)
			m2 := mentionAt("102", now.Add(time.Second))

			src := fixtures.NewScriptedSource(
				[]domain.Mention{m1, m2},
				[]domain.Mention{m1, m2},
				nil,
			)

			p := &fixtures.KeywordPlugin{PluginName: "hello", Keyword: "hello"}
			engine := newEngine(src, store, p)

			runUntil(engine, func() bool { return src.Polls() >= 3 })

			Expect(p.Processed()).To(Equal([]string{"101", "102"}))
			Expect(src.Replies()).To(HaveLen(2))
		})
	})

	Describe("watermark persistence across restarts", func() {
		It("never re-dispatches mentions processed before the restart", func() {
			// First daemon lifetime.
			store1, err := infra.OpenStateStore(statePath, time.Hour, logger)
			Expect(err).NotTo(HaveOccurred())

			now := store1.InitializedAt().Add(time.Second)
			m1 := mentionAt("201", now)
			src1 := fixtures.NewScriptedSource([]domain.Mention{m1})
			p1 := &fixtures.KeywordPlugin{PluginName: "hello", Keyword: "hello"}
			runUntil(newEngine(src1, store1, p1), func() bool {
				return len(p1.Processed()) == 1
			})
			Expect(store1.Watermark()).To(Equal("201"))

			// Restart: same state file, source replays the old mention.
			m2 := mentionAt("202", now.Add(time.Minute))
			src2 := fixtures.NewScriptedSource([]domain.Mention{m1, m2})
			store2, err := infra.OpenStateStore(statePath, time.Hour, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(store2.Watermark()).To(Equal("201"))

			p2 := &fixtures.KeywordPlugin{PluginName: "hello", Keyword: "hello"}
			runUntil(newEngine(src2, store2, p2), func() bool {
				return len(p2.Processed()) == 1
			})

			Expect(p2.Processed()).To(Equal([]string{"202"}))
			Expect(store2.Watermark()).To(Equal("202"))
		})
	})

	Describe("plugin failure escalation", func() {
		It("invokes every plugin, escalates once and still marks the mention", func() {
			store, err := infra.OpenStateStore(statePath, time.Hour, logger)
			Expect(err).NotTo(HaveOccurred())

			m := mentionAt("301", store.InitializedAt().Add(time.Second))
			src := fixtures.NewScriptedSource([]domain.Mention{m})

			failing := &fixtures.FailingPlugin{PluginName: "a-broken", Err: errors.New("boom")}
			healthy := &fixtures.KeywordPlugin{PluginName: "b-hello", Keyword: "hello"}
			engine := newEngine(src, store, failing, healthy)

			runUntil(engine, func() bool { return len(healthy.Processed()) == 1 })

			Expect(failing.Processed()).To(Equal([]string{"301"}))
			Expect(sink.Messages()).To(HaveLen(1))
			Expect(sink.Messages()[0]).To(ContainSubstring("a-broken"))
			Expect(sink.Messages()[0]).To(ContainSubstring("301"))
			Expect(store.IsProcessed("301")).To(BeTrue())
		})
	})

	Describe("fresh install", func() {
		It("records but never dispatches mentions predating the first run", func() {
			store, err := infra.OpenStateStore(statePath, time.Hour, logger)
			Expect(err).NotTo(HaveOccurred())

			old := mentionAt("401", store.InitializedAt().Add(-time.Minute))
			fresh := mentionAt("402", store.InitializedAt().Add(5*time.Second))
			src := fixtures.NewScriptedSource(
				[]domain.Mention{old, fresh},
				[]domain.Mention{fresh},
			)

			p := &fixtures.KeywordPlugin{PluginName: "hello", Keyword: "hello"}
			engine := newEngine(src, store, p)

			runUntil(engine, func() bool { return src.Polls() >= 2 })

			Expect(p.Processed()).To(Equal([]string{"402"}))
		})
	})
})
