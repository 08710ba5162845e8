package recall

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
	"github.com/gamesense/recsys/store"
)

func setup(t *testing.T) *feature.FeatureStore {
	t.Helper()
	ms := store.NewMemoryStore()
	t.Cleanup(func() { ms.Close() })
	return feature.NewFeatureStore(ms, feature.FeatureStoreConfig{})
}

func TestPopularityRecall(t *testing.T) {
	ctx := context.Background()
	fs := setup(t)
	if err := fs.SetPopularity(ctx, map[string]float64{"g1": 100, "g2": 90, "g3": 80}); err != nil {
		t.Fatalf("SetPopularity: %v", err)
	}

	src := &Popularity{Features: fs, Limit: 2}
	got, err := src.Recall(ctx, &core.RecommendContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 2 || got[0].ID != "g1" || got[1].ID != "g2" {
		t.Fatalf("Recall = %v", got)
	}
	if lbl := got[0].Labels["recall_source"]; lbl.Value != "popularity" {
		t.Errorf("recall_source label = %+v", lbl)
	}

	// Params 覆盖默认规模
	got, err = src.Recall(ctx, &core.RecommendContext{Params: map[string]any{ParamLimit: 3}})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Recall with param limit = %d items, want 3", len(got))
	}
}

func TestPopularityByGenre(t *testing.T) {
	ctx := context.Background()
	fs := setup(t)
	metas := []*core.ItemMetadata{
		{ID: "g1", Genres: []string{"RPG"}},
		{ID: "g2", Genres: []string{"Racing"}},
		{ID: "g3", Genres: []string{"RPG"}},
		{ID: "g4", Genres: []string{"RPG"}}, // 不在热门榜
	}
	if err := fs.CacheMetadata(ctx, metas); err != nil {
		t.Fatalf("CacheMetadata: %v", err)
	}
	if err := fs.BuildGenreIndex(ctx, metas); err != nil {
		t.Fatalf("BuildGenreIndex: %v", err)
	}
	if err := fs.SetPopularity(ctx, map[string]float64{"g1": 50, "g2": 100, "g3": 80}); err != nil {
		t.Fatalf("SetPopularity: %v", err)
	}

	src := &Popularity{Features: fs}
	got, err := src.ByGenre(ctx, "RPG", 10)
	if err != nil {
		t.Fatalf("ByGenre: %v", err)
	}
	// 热门榜内的 RPG 按热度序，未上榜的 g4 排在末尾
	want := []string{"g3", "g1", "g4"}
	if len(got) != len(want) {
		t.Fatalf("ByGenre = %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("ByGenre[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestEmbeddingRecallFallback(t *testing.T) {
	ctx := context.Background()
	fs := setup(t)

	// 无索引：走暴力检索（热门榜候选池 + 余弦）
	if err := fs.SetPopularity(ctx, map[string]float64{"g1": 3, "g2": 2, "g3": 1}); err != nil {
		t.Fatalf("SetPopularity: %v", err)
	}
	if err := fs.CacheEmbeddings(ctx, "m", feature.EmbeddingKindItem, map[string][]float32{
		"g1": {1, 0},
		"g2": {0.9, 0.1},
		"g3": {0, 1},
	}); err != nil {
		t.Fatalf("CacheEmbeddings: %v", err)
	}
	if err := fs.CacheEmbeddings(ctx, "m", feature.EmbeddingKindUser, map[string][]float32{
		"u1": {1, 0},
	}); err != nil {
		t.Fatalf("CacheEmbeddings: %v", err)
	}

	src := &Embedding{Features: fs, Model: "m", Limit: 10, Log: zerolog.Nop()}
	got, err := src.Recall(ctx, &core.RecommendContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recall = %d items, want 3", len(got))
	}
	if got[0].ID != "g1" || got[1].ID != "g2" {
		t.Errorf("cosine order wrong: %s, %s", got[0].ID, got[1].ID)
	}
	if lbl := got[0].Labels["recall_path"]; lbl.Value != "fallback" {
		t.Errorf("recall_path = %+v, want fallback", lbl)
	}
}

func TestEmbeddingRecallExcludesPlayed(t *testing.T) {
	ctx := context.Background()
	fs := setup(t)
	if err := fs.SetPopularity(ctx, map[string]float64{"g1": 2, "g2": 1}); err != nil {
		t.Fatalf("SetPopularity: %v", err)
	}
	if err := fs.CacheEmbeddings(ctx, "m", feature.EmbeddingKindItem, map[string][]float32{
		"g1": {1, 0},
		"g2": {0.5, 0.5},
	}); err != nil {
		t.Fatalf("CacheEmbeddings: %v", err)
	}
	if err := fs.CacheEmbeddings(ctx, "m", feature.EmbeddingKindUser, map[string][]float32{
		"u1": {1, 0},
	}); err != nil {
		t.Fatalf("CacheEmbeddings: %v", err)
	}
	if err := fs.AppendInteraction(ctx, "u1", "g1"); err != nil {
		t.Fatalf("AppendInteraction: %v", err)
	}

	src := &Embedding{Features: fs, Model: "m", Limit: 10, Log: zerolog.Nop()}
	got, err := src.Recall(ctx, &core.RecommendContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	for _, it := range got {
		if it.ID == "g1" {
			t.Errorf("played item g1 leaked into recall: %v", got)
		}
	}
}

func TestEmbeddingRecallNoUserVector(t *testing.T) {
	ctx := context.Background()
	fs := setup(t)

	src := &Embedding{Features: fs, Model: "m", Limit: 10, Log: zerolog.Nop()}
	got, err := src.Recall(ctx, &core.RecommendContext{UserID: "nobody"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recall without user vector = %v, want empty", got)
	}
}

func TestSimilarItemsFallback(t *testing.T) {
	ctx := context.Background()
	fs := setup(t)
	if err := fs.SetPopularity(ctx, map[string]float64{"g1": 3, "g2": 2, "g3": 1}); err != nil {
		t.Fatalf("SetPopularity: %v", err)
	}
	if err := fs.CacheEmbeddings(ctx, "m", feature.EmbeddingKindItem, map[string][]float32{
		"g1": {1, 0},
		"g2": {0.9, 0.1},
		"g3": {0, 1},
	}); err != nil {
		t.Fatalf("CacheEmbeddings: %v", err)
	}

	src := &Embedding{Features: fs, Model: "m", Log: zerolog.Nop()}
	got, err := src.SimilarItems(ctx, "g1", 2)
	if err != nil {
		t.Fatalf("SimilarItems: %v", err)
	}
	if len(got) == 0 || got[0].ID != "g2" {
		t.Fatalf("SimilarItems = %v, want g2 first", got)
	}
	for _, it := range got {
		if it.ID == "g1" {
			t.Errorf("query item should be excluded from its own neighbors")
		}
	}
}

type stubSource struct {
	name  string
	items []string
	err   error
}

func (s *stubSource) Name() string        { return s.name }
func (s *stubSource) Recall(context.Context, *core.RecommendContext) ([]*core.Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*core.Item, len(s.items))
	for i, id := range s.items {
		out[i] = core.NewItem(id)
	}
	return out, nil
}

func TestFanoutDedup(t *testing.T) {
	ctx := context.Background()
	fanout := &Fanout{
		Sources: []Source{
			&stubSource{name: "a", items: []string{"g1", "g2"}},
			&stubSource{name: "b", items: []string{"g2", "g3"}},
		},
		Dedup: true,
	}
	got, err := fanout.Process(ctx, &core.RecommendContext{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	seen := make(map[string]int)
	for _, it := range got {
		seen[it.ID]++
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 unique items, got %v", seen)
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("item %s duplicated %d times", id, n)
		}
	}
}

func TestBatchRecall(t *testing.T) {
	ctx := context.Background()
	fs := setup(t)
	if err := fs.SetPopularity(ctx, map[string]float64{"g1": 1}); err != nil {
		t.Fatalf("SetPopularity: %v", err)
	}

	src := &Popularity{Features: fs, Limit: 5}
	results := BatchRecall(ctx, src, []string{"u1", "u2", "u3"}, 2)
	if len(results) != 3 {
		t.Fatalf("BatchRecall returned %d entries, want 3", len(results))
	}
	for user, items := range results {
		if len(items) != 1 || items[0].ID != "g1" {
			t.Errorf("results[%s] = %v", user, items)
		}
	}
}

func TestBatchRecallFailedUserYieldsEmptyEntry(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{name: "flaky", err: errors.New("recall down")}

	results := BatchRecall(ctx, src, []string{"u1", "u2"}, 2)
	if len(results) != 2 {
		t.Fatalf("BatchRecall returned %d entries, want 2", len(results))
	}
	for _, user := range []string{"u1", "u2"} {
		items, ok := results[user]
		if !ok {
			t.Errorf("user %s missing from batch result", user)
		}
		if len(items) != 0 {
			t.Errorf("results[%s] = %v, want empty", user, items)
		}
	}
}
