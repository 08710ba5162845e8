package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/config"
	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
	"github.com/gamesense/recsys/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	t.Cleanup(func() { ms.Close() })
	cfg := config.DefaultSettings()
	eng := New(cfg, Deps{Store: ms, Log: zerolog.Nop()})
	return eng, ms
}

func seedPopularity(t *testing.T, eng *Engine, scores map[string]float64) {
	t.Helper()
	if err := eng.Features().SetPopularity(context.Background(), scores); err != nil {
		t.Fatalf("SetPopularity: %v", err)
	}
}

func TestRecommendColdUserUsesPopularity(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	seedPopularity(t, eng, map[string]float64{"g1": 100, "g2": 90, "g3": 80})

	resp := eng.Recommend(ctx, Request{UserID: "newcomer", TopK: 2})
	if resp.Algorithm != AlgorithmPopularity {
		t.Fatalf("Algorithm = %s, want %s", resp.Algorithm, AlgorithmPopularity)
	}
	if resp.FromCache {
		t.Error("first call should not come from cache")
	}
	if len(resp.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(resp.Items))
	}
}

func TestRecommendEmptyBoard(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	resp := eng.Recommend(ctx, Request{UserID: "u1"})
	if resp.Algorithm != AlgorithmEmpty {
		t.Errorf("Algorithm = %s, want %s", resp.Algorithm, AlgorithmEmpty)
	}
	if len(resp.Items) != 0 {
		t.Errorf("Items = %v, want empty", resp.Items)
	}
}

func TestRecommendCacheHit(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	seedPopularity(t, eng, map[string]float64{"g1": 100, "g2": 90})

	first := eng.Recommend(ctx, Request{UserID: "u1", TopK: 2})
	if first.FromCache {
		t.Fatal("first call should compute")
	}

	second := eng.Recommend(ctx, Request{UserID: "u1", TopK: 2})
	if !second.FromCache || second.Algorithm != AlgorithmCached {
		t.Fatalf("second call: FromCache=%v Algorithm=%s", second.FromCache, second.Algorithm)
	}
	if len(second.Items) != len(first.Items) {
		t.Errorf("cached result size %d, want %d", len(second.Items), len(first.Items))
	}
	for i := range first.Items {
		if second.Items[i].ID != first.Items[i].ID {
			t.Errorf("cached order differs at %d: %s vs %s", i, second.Items[i].ID, first.Items[i].ID)
		}
	}
}

func TestRecommendExplicitAlgorithmBypassesCache(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	seedPopularity(t, eng, map[string]float64{"g1": 100})

	eng.Recommend(ctx, Request{UserID: "u1"}) // 填充缓存

	resp := eng.Recommend(ctx, Request{UserID: "u1", Algorithm: AlgorithmPopularity})
	if resp.FromCache {
		t.Error("explicit algorithm must bypass the result cache")
	}
	if resp.Algorithm != AlgorithmPopularity {
		t.Errorf("Algorithm = %s, want %s", resp.Algorithm, AlgorithmPopularity)
	}
}

func TestOnInteractionInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	seedPopularity(t, eng, map[string]float64{"g1": 100, "g2": 90, "g3": 80})

	first := eng.Recommend(ctx, Request{UserID: "u1", TopK: 3})
	if len(first.Items) == 0 {
		t.Fatal("no recommendations")
	}

	if err := eng.OnInteraction(ctx, "u1", first.Items[0].ID); err != nil {
		t.Fatalf("OnInteraction: %v", err)
	}

	resp := eng.Recommend(ctx, Request{UserID: "u1", TopK: 3})
	if resp.FromCache {
		t.Fatal("cache should be invalidated after interaction")
	}
	// 刚交互过的游戏不会再被推荐
	for _, it := range resp.Items {
		if it.ID == first.Items[0].ID {
			t.Errorf("just-played game %s recommended again", it.ID)
		}
	}
}

func TestRecommendActiveUserUsesEmbedding(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	fs := eng.Features()

	seedPopularity(t, eng, map[string]float64{"g1": 5, "g2": 4, "g3": 3, "g4": 2, "g5": 1, "g6": 1})
	if err := fs.CacheEmbeddings(ctx, eng.cfg.Model, feature.EmbeddingKindItem, map[string][]float32{
		"g1": make64(0), "g2": make64(1), "g3": make64(2),
		"g4": make64(3), "g5": make64(4), "g6": make64(5),
	}); err != nil {
		t.Fatalf("CacheEmbeddings: %v", err)
	}
	if err := fs.CacheEmbeddings(ctx, eng.cfg.Model, feature.EmbeddingKindUser, map[string][]float32{
		"u1": make64(0),
	}); err != nil {
		t.Fatalf("CacheEmbeddings: %v", err)
	}

	// 5 次交互：跨过向量召回阈值
	for _, id := range []string{"g1", "g2", "g1", "g2", "g1"} {
		if err := eng.OnInteraction(ctx, "u1", id); err != nil {
			t.Fatalf("OnInteraction: %v", err)
		}
	}

	resp := eng.Recommend(ctx, Request{UserID: "u1", TopK: 5})
	if resp.Algorithm != AlgorithmEmbedding {
		t.Fatalf("Algorithm = %s, want %s", resp.Algorithm, AlgorithmEmbedding)
	}
	for _, it := range resp.Items {
		if it.ID == "g1" || it.ID == "g2" {
			t.Errorf("played game %s leaked into recommendations", it.ID)
		}
	}
}

// make64 构造一个 64 维稀疏向量（第 hot 维为 1）。
func make64(hot int) []float32 {
	v := make([]float32, 64)
	v[hot%64] = 1
	return v
}

func TestBlockRemovesGame(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	seedPopularity(t, eng, map[string]float64{"g1": 100, "g2": 90})

	if err := eng.Block(ctx, "u1", "g1"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	resp := eng.Recommend(ctx, Request{UserID: "u1", TopK: 5})
	for _, it := range resp.Items {
		if it.ID == "g1" {
			t.Errorf("blocked game recommended: %v", resp.Items)
		}
	}
}

func TestRecommendInvalidRequest(t *testing.T) {
	eng, _ := newTestEngine(t)
	resp := eng.Recommend(context.Background(), Request{})
	if resp.Algorithm != AlgorithmError {
		t.Errorf("Algorithm = %s, want %s", resp.Algorithm, AlgorithmError)
	}
}

func TestRecommendTopKCap(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	scores := make(map[string]float64, 200)
	for i := 0; i < 200; i++ {
		scores[string(rune('a'+i%26))+string(rune('0'+i/26))] = float64(i)
	}
	seedPopularity(t, eng, scores)

	resp := eng.Recommend(ctx, Request{UserID: "u1", TopK: 10000})
	if len(resp.Items) > eng.cfg.MaxTopK {
		t.Errorf("got %d items, cap is %d", len(resp.Items), eng.cfg.MaxTopK)
	}
}

func TestExplain(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	fs := eng.Features()

	if err := fs.CacheMetadata(ctx, []*core.ItemMetadata{
		{ID: "g1", Title: "Starfall", Genres: []string{"RPG"}},
		{ID: "g2", Title: "Dungeon Loop", Genres: []string{"RPG"}},
	}); err != nil {
		t.Fatalf("CacheMetadata: %v", err)
	}

	// 无历史：热门话术
	exp, err := eng.Explain(ctx, "stranger", "g1")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if len(exp.Influences) != 0 || exp.Reason == "" {
		t.Errorf("cold explain = %+v", exp)
	}

	if err := eng.OnInteraction(ctx, "u1", "g2"); err != nil {
		t.Fatalf("OnInteraction: %v", err)
	}
	exp, err = eng.Explain(ctx, "u1", "g1")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if len(exp.Influences) != 1 || exp.Influences[0].ItemID != "g2" {
		t.Fatalf("Influences = %+v", exp.Influences)
	}
	if exp.Influences[0].Weight != 1.0 {
		t.Errorf("most recent influence weight = %v, want 1", exp.Influences[0].Weight)
	}

	if _, err := eng.Explain(ctx, "", "g1"); err == nil {
		t.Error("Explain with empty user should fail")
	}
}

func TestPopularAndTrending(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	fs := eng.Features()

	metas := []*core.ItemMetadata{
		{ID: "g1", Genres: []string{"RPG"}},
		{ID: "g2", Genres: []string{"Racing"}},
	}
	if err := fs.CacheMetadata(ctx, metas); err != nil {
		t.Fatalf("CacheMetadata: %v", err)
	}
	if err := fs.BuildGenreIndex(ctx, metas); err != nil {
		t.Fatalf("BuildGenreIndex: %v", err)
	}
	seedPopularity(t, eng, map[string]float64{"g1": 100, "g2": 90})

	all, err := eng.Popular(ctx, 10, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("Popular = %v, %v", all, err)
	}
	rpg, err := eng.Popular(ctx, 10, "RPG")
	if err != nil || len(rpg) != 1 || rpg[0].ID != "g1" {
		t.Fatalf("Popular(RPG) = %v, %v", rpg, err)
	}
	trending, err := eng.Trending(ctx, 1, "week")
	if err != nil || len(trending) != 1 || trending[0].ID != "g1" {
		t.Fatalf("Trending = %v, %v", trending, err)
	}
}
